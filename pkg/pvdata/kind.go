package pvdata

// Kind identifies the type of a Value node.
type Kind uint8

const (
	// KindInvalid is the zero Kind; only an empty Value has it.
	KindInvalid Kind = iota

	// KindDouble is a 64-bit floating point scalar.
	KindDouble

	// KindInt32 is a 32-bit signed integer scalar.
	KindInt32

	// KindString is a string scalar.
	KindString

	// KindEnum is an enumerated scalar: a 16-bit index into an
	// immutable array of string choices.
	KindEnum

	// KindDoubleArray is an array of 64-bit floats.
	KindDoubleArray

	// KindInt32Array is an array of 32-bit signed integers.
	KindInt32Array

	// KindStringArray is an array of strings.
	KindStringArray

	// KindStruct is a named collection of child Values.
	KindStruct
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDouble:
		return "double"
	case KindInt32:
		return "int32"
	case KindString:
		return "string"
	case KindEnum:
		return "enum"
	case KindDoubleArray:
		return "double[]"
	case KindInt32Array:
		return "int32[]"
	case KindStringArray:
		return "string[]"
	case KindStruct:
		return "struct"
	default:
		return "invalid"
	}
}

// IsArray returns true for array kinds.
func (k Kind) IsArray() bool {
	return k == KindDoubleArray || k == KindInt32Array || k == KindStringArray
}

// IsScalar returns true for scalar kinds (including enum).
func (k Kind) IsScalar() bool {
	return k == KindDouble || k == KindInt32 || k == KindString || k == KindEnum
}
