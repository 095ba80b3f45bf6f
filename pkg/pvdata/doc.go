// Package pvdata implements the structured value container used by both
// the client and server sides of the library.
//
// A Value is an immutable tree of typed nodes addressed by dot-separated
// field paths ("value", "alarm.severity", "timeStamp.secondsPastEpoch").
// Accessors apply a fixed coercion table between the stored kind and the
// requested kind; strings are terminal and never parsed into numerics.
//
// The package also provides builders for the conventional normative-type
// layouts (NTScalar, NTEnum) that bundle a primary value with alarm,
// timestamp and display/control metadata.
package pvdata
