package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Capture files hold a bare concatenation of CBOR-encoded events with
// integer keys. Timestamps keep nanosecond precision so request and
// response events order correctly when replayed.
var (
	captureEnc cbor.EncMode
	captureDec cbor.DecMode
)

func init() {
	enc, err := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture encoder mode: %v", err))
	}
	captureEnc = enc

	dec, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture decoder mode: %v", err))
	}
	captureDec = dec
}

// EncodeEvent renders one event in the capture encoding.
func EncodeEvent(event Event) ([]byte, error) {
	return captureEnc.Marshal(event)
}

// DecodeEvent parses one event from the capture encoding.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := captureDec.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// NewEncoder returns a streaming capture encoder writing to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return captureEnc.NewEncoder(w)
}

// NewDecoder returns a streaming capture decoder reading from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return captureDec.NewDecoder(r)
}
