package wire

import (
	"fmt"

	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
)

// Value is the transfer encoding of a pvdata.Value tree.
//
// CBOR encoding:
//
//	{
//	  1: kind,       // uint8: pvdata.Kind ordinal
//	  2: double,     // float64 (KindDouble)
//	  3: int,        // int32 (KindInt32)
//	  4: string,     // string (KindString)
//	  5: index,      // int16 (KindEnum)
//	  6: choices,    // []string (KindEnum)
//	  7: doubles,    // []float64 (KindDoubleArray)
//	  8: ints,       // []int32 (KindInt32Array)
//	  9: strings,    // []string (KindStringArray)
//	  10: names,     // []string: field order (KindStruct)
//	  11: fields     // []Value: children in name order (KindStruct)
//	}
//
// Only the keys relevant to the kind are present. Scalars encode their
// value even when zero so a decoded tree is never ambiguous.
type Value struct {
	Kind    uint8     `cbor:"1,keyasint"`
	Double  float64   `cbor:"2,keyasint,omitempty"`
	Int     int32     `cbor:"3,keyasint,omitempty"`
	Str     string    `cbor:"4,keyasint,omitempty"`
	Index   int16     `cbor:"5,keyasint,omitempty"`
	Choices []string  `cbor:"6,keyasint,omitempty"`
	Doubles []float64 `cbor:"7,keyasint,omitempty"`
	Ints    []int32   `cbor:"8,keyasint,omitempty"`
	Strings []string  `cbor:"9,keyasint,omitempty"`
	Names   []string  `cbor:"10,keyasint,omitempty"`
	Fields  []Value   `cbor:"11,keyasint,omitempty"`
}

// FromValue converts a pvdata.Value tree into its transfer form.
func FromValue(v pvdata.Value) (*Value, error) {
	switch v.Kind() {
	case pvdata.KindDouble:
		return &Value{Kind: uint8(pvdata.KindDouble), Double: v.Double()}, nil
	case pvdata.KindInt32:
		return &Value{Kind: uint8(pvdata.KindInt32), Int: v.Int32()}, nil
	case pvdata.KindString:
		return &Value{Kind: uint8(pvdata.KindString), Str: v.Str()}, nil
	case pvdata.KindEnum:
		return &Value{
			Kind:    uint8(pvdata.KindEnum),
			Index:   v.EnumIndex(),
			Choices: v.Choices(),
		}, nil
	case pvdata.KindDoubleArray:
		return &Value{Kind: uint8(pvdata.KindDoubleArray), Doubles: v.DoubleArray()}, nil
	case pvdata.KindInt32Array:
		return &Value{Kind: uint8(pvdata.KindInt32Array), Ints: v.Int32Array()}, nil
	case pvdata.KindStringArray:
		return &Value{Kind: uint8(pvdata.KindStringArray), Strings: v.StringArray()}, nil
	case pvdata.KindStruct:
		names := v.FieldNames()
		fields := make([]Value, 0, len(names))
		for _, name := range names {
			child, err := v.Lookup(name)
			if err != nil {
				return nil, err
			}
			wc, err := FromValue(child)
			if err != nil {
				return nil, err
			}
			fields = append(fields, *wc)
		}
		return &Value{
			Kind:   uint8(pvdata.KindStruct),
			Names:  names,
			Fields: fields,
		}, nil
	default:
		return nil, fmt.Errorf("cannot encode value of kind %s", v.Kind())
	}
}

// ToValue converts a transfer value back into a pvdata.Value tree.
func (w *Value) ToValue() (pvdata.Value, error) {
	switch pvdata.Kind(w.Kind) {
	case pvdata.KindDouble:
		return pvdata.NewDouble(w.Double), nil
	case pvdata.KindInt32:
		return pvdata.NewInt32(w.Int), nil
	case pvdata.KindString:
		return pvdata.NewString(w.Str), nil
	case pvdata.KindEnum:
		return pvdata.NewEnum(w.Index, w.Choices), nil
	case pvdata.KindDoubleArray:
		return pvdata.NewDoubleArray(w.Doubles), nil
	case pvdata.KindInt32Array:
		return pvdata.NewInt32Array(w.Ints), nil
	case pvdata.KindStringArray:
		return pvdata.NewStringArray(w.Strings), nil
	case pvdata.KindStruct:
		if len(w.Names) != len(w.Fields) {
			return pvdata.Value{}, fmt.Errorf(
				"malformed struct: %d names, %d fields", len(w.Names), len(w.Fields))
		}
		fields := make([]pvdata.Field, 0, len(w.Names))
		for i, name := range w.Names {
			child, err := w.Fields[i].ToValue()
			if err != nil {
				return pvdata.Value{}, err
			}
			fields = append(fields, pvdata.Field{Name: name, Value: child})
		}
		return pvdata.NewStruct(fields...), nil
	default:
		return pvdata.Value{}, fmt.Errorf("cannot decode value of kind %d", w.Kind)
	}
}
