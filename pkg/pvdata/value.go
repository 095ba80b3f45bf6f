package pvdata

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Value is an immutable node in a typed tree. The zero Value is invalid.
//
// Values are constructed once and never mutated; accessors return copies
// of any slice data. A Value is therefore safe to share between goroutines.
type Value struct {
	kind Kind

	f       float64
	i       int32
	s       string
	idx     int16
	choices []string

	fa []float64
	ia []int32
	sa []string

	fields map[string]Value
	order  []string
}

// Field pairs a name with a child Value for struct construction.
type Field struct {
	Name  string
	Value Value
}

// NewDouble creates a double scalar.
func NewDouble(v float64) Value {
	return Value{kind: KindDouble, f: v}
}

// NewInt32 creates an int32 scalar.
func NewInt32(v int32) Value {
	return Value{kind: KindInt32, i: v}
}

// NewString creates a string scalar.
func NewString(v string) Value {
	return Value{kind: KindString, s: v}
}

// NewEnum creates an enum scalar with the given index and choices.
// The choices array is copied and immutable thereafter.
func NewEnum(index int16, choices []string) Value {
	c := make([]string, len(choices))
	copy(c, choices)
	return Value{kind: KindEnum, idx: index, choices: c}
}

// NewDoubleArray creates a double array. The input is copied.
func NewDoubleArray(v []float64) Value {
	a := make([]float64, len(v))
	copy(a, v)
	return Value{kind: KindDoubleArray, fa: a}
}

// NewInt32Array creates an int32 array. The input is copied.
func NewInt32Array(v []int32) Value {
	a := make([]int32, len(v))
	copy(a, v)
	return Value{kind: KindInt32Array, ia: a}
}

// NewStringArray creates a string array. The input is copied.
func NewStringArray(v []string) Value {
	a := make([]string, len(v))
	copy(a, v)
	return Value{kind: KindStringArray, sa: a}
}

// NewStruct creates a struct node from the given fields, preserving order.
// A duplicate field name replaces the earlier entry.
func NewStruct(fields ...Field) Value {
	m := make(map[string]Value, len(fields))
	order := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, exists := m[f.Name]; !exists {
			order = append(order, f.Name)
		}
		m[f.Name] = f.Value
	}
	return Value{kind: KindStruct, fields: m, order: order}
}

// Kind returns the node kind.
func (v Value) Kind() Kind {
	return v.kind
}

// IsValid reports whether the Value holds data. Only the zero Value
// (empty/uninitialized) is invalid.
func (v Value) IsValid() bool {
	return v.kind != KindInvalid
}

// lookup resolves a dot-separated field path to a node. Enum nodes expose
// the synthetic children "index" (int32) and "choices" (string array).
func (v Value) lookup(path string) (Value, error) {
	if !v.IsValid() {
		return Value{}, ErrInvalidValue
	}
	if path == "" {
		return Value{}, fmt.Errorf("%w: empty path", ErrNoSuchField)
	}

	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch cur.kind {
		case KindStruct:
			child, ok := cur.fields[seg]
			if !ok {
				return Value{}, fmt.Errorf("%w: %q", ErrNoSuchField, path)
			}
			cur = child
		case KindEnum:
			switch seg {
			case "index":
				cur = NewInt32(int32(cur.idx))
			case "choices":
				cur = NewStringArray(cur.choices)
			default:
				return Value{}, fmt.Errorf("%w: %q", ErrNoSuchField, path)
			}
		default:
			return Value{}, fmt.Errorf("%w: %q", ErrNoSuchField, path)
		}
	}
	return cur, nil
}

// coercion keys the scalar conversion table by requested and stored kind.
// Identity pairs are handled before consulting the table. Absence of a key
// means the conversion is a type mismatch; in particular strings are
// terminal and never parse into numerics.
type coercion struct {
	want Kind
	have Kind
}

// truncInt32 truncates toward zero, saturating outside the int32 range.
// NaN maps to zero.
func truncInt32(f float64) int32 {
	t := math.Trunc(f)
	switch {
	case math.IsNaN(t):
		return 0
	case t >= math.MaxInt32:
		return math.MaxInt32
	case t <= math.MinInt32:
		return math.MinInt32
	}
	return int32(t)
}

var scalarCoercions = map[coercion]func(Value) Value{
	{KindDouble, KindInt32}: func(n Value) Value {
		return NewDouble(float64(n.i))
	},
	{KindInt32, KindDouble}: func(n Value) Value {
		return NewInt32(truncInt32(n.f))
	},
	{KindString, KindDouble}: func(n Value) Value {
		return NewString(strconv.FormatFloat(n.f, 'g', -1, 64))
	},
	{KindString, KindInt32}: func(n Value) Value {
		return NewString(strconv.FormatInt(int64(n.i), 10))
	},
}

func (v Value) getScalar(path string, want Kind) (Value, error) {
	node, err := v.lookup(path)
	if err != nil {
		return Value{}, err
	}
	if node.kind == want {
		return node, nil
	}
	if conv, ok := scalarCoercions[coercion{want, node.kind}]; ok {
		return conv(node), nil
	}
	return Value{}, fmt.Errorf("%w: field %q is %s, requested %s",
		ErrTypeMismatch, path, node.kind, want)
}

// GetDouble returns the field at path as a double. Stored int32 values
// widen exactly; any other stored kind is a type mismatch.
func (v Value) GetDouble(path string) (float64, error) {
	node, err := v.getScalar(path, KindDouble)
	if err != nil {
		return 0, err
	}
	return node.f, nil
}

// GetInt32 returns the field at path as an int32. Stored double values
// truncate toward zero, saturating at the int32 limits; any other
// stored kind is a type mismatch.
func (v Value) GetInt32(path string) (int32, error) {
	node, err := v.getScalar(path, KindInt32)
	if err != nil {
		return 0, err
	}
	return node.i, nil
}

// GetString returns the field at path as a string. Stored numerics are
// formatted; stored strings are returned as-is.
func (v Value) GetString(path string) (string, error) {
	node, err := v.getScalar(path, KindString)
	if err != nil {
		return "", err
	}
	return node.s, nil
}

// GetEnum returns the enum index of the field at path. It accepts either
// an enum node or an int32 node (so "x" and "x.index" are equivalent).
func (v Value) GetEnum(path string) (int16, error) {
	node, err := v.lookup(path)
	if err != nil {
		return 0, err
	}
	switch node.kind {
	case KindEnum:
		return node.idx, nil
	case KindInt32:
		return int16(node.i), nil
	default:
		return 0, fmt.Errorf("%w: field %q is %s, requested enum",
			ErrTypeMismatch, path, node.kind)
	}
}

// EnumChoices returns the immutable choices array of the enum at path.
func (v Value) EnumChoices(path string) ([]string, error) {
	node, err := v.lookup(path)
	if err != nil {
		return nil, err
	}
	if node.kind != KindEnum {
		return nil, fmt.Errorf("%w: field %q is %s, requested enum",
			ErrTypeMismatch, path, node.kind)
	}
	out := make([]string, len(node.choices))
	copy(out, node.choices)
	return out, nil
}

func (v Value) getArray(path string, want Kind) (Value, error) {
	node, err := v.lookup(path)
	if err != nil {
		return Value{}, err
	}
	if node.kind == want {
		return node, nil
	}
	if node.kind.IsScalar() {
		return Value{}, fmt.Errorf("%w: field %q is scalar %s",
			ErrNotAnArray, path, node.kind)
	}
	// Cross-array coercion mirrors the scalar rules: numeric arrays widen
	// or truncate element-wise, string arrays are terminal.
	switch {
	case want == KindDoubleArray && node.kind == KindInt32Array:
		out := make([]float64, len(node.ia))
		for i, n := range node.ia {
			out[i] = float64(n)
		}
		return Value{kind: KindDoubleArray, fa: out}, nil
	case want == KindInt32Array && node.kind == KindDoubleArray:
		out := make([]int32, len(node.fa))
		for i, n := range node.fa {
			out[i] = truncInt32(n)
		}
		return Value{kind: KindInt32Array, ia: out}, nil
	}
	return Value{}, fmt.Errorf("%w: field %q is %s, requested %s",
		ErrTypeMismatch, path, node.kind, want)
}

// GetDoubleArray returns the field at path as a double array.
// Scalar nodes are never promoted; they yield ErrNotAnArray.
func (v Value) GetDoubleArray(path string) ([]float64, error) {
	node, err := v.getArray(path, KindDoubleArray)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(node.fa))
	copy(out, node.fa)
	return out, nil
}

// GetInt32Array returns the field at path as an int32 array.
func (v Value) GetInt32Array(path string) ([]int32, error) {
	node, err := v.getArray(path, KindInt32Array)
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(node.ia))
	copy(out, node.ia)
	return out, nil
}

// GetStringArray returns the field at path as a string array.
// Enum choices are reachable as "<path>.choices".
func (v Value) GetStringArray(path string) ([]string, error) {
	node, err := v.getArray(path, KindStringArray)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(node.sa))
	copy(out, node.sa)
	return out, nil
}

// Lookup returns the child Value at path. Useful for walking into
// sub-structures before applying typed accessors.
func (v Value) Lookup(path string) (Value, error) {
	return v.lookup(path)
}

// Coerce converts a scalar or array node to the requested kind using the
// same rules as the typed field accessors: int32<->double widen/truncate,
// numerics format to string, strings never parse into numerics, scalars
// never promote to arrays.
func Coerce(v Value, want Kind) (Value, error) {
	if !v.IsValid() {
		return Value{}, ErrInvalidValue
	}
	if v.kind == want {
		return v, nil
	}
	if conv, ok := scalarCoercions[coercion{want, v.kind}]; ok {
		return conv(v), nil
	}
	if want.IsArray() && v.kind.IsScalar() {
		return Value{}, fmt.Errorf("%w: value is scalar %s", ErrNotAnArray, v.kind)
	}
	switch {
	case want == KindDoubleArray && v.kind == KindInt32Array:
		out := make([]float64, len(v.ia))
		for i, n := range v.ia {
			out[i] = float64(n)
		}
		return Value{kind: KindDoubleArray, fa: out}, nil
	case want == KindInt32Array && v.kind == KindDoubleArray:
		out := make([]int32, len(v.fa))
		for i, n := range v.fa {
			out[i] = truncInt32(n)
		}
		return Value{kind: KindInt32Array, ia: out}, nil
	}
	return Value{}, fmt.Errorf("%w: value is %s, requested %s",
		ErrTypeMismatch, v.kind, want)
}

// FieldNames returns the names of a struct node's children in
// declaration order, or nil for non-struct nodes.
func (v Value) FieldNames() []string {
	if v.kind != KindStruct {
		return nil
	}
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// Double returns the raw double of a KindDouble node.
func (v Value) Double() float64 { return v.f }

// Int32 returns the raw int32 of a KindInt32 node.
func (v Value) Int32() int32 { return v.i }

// Str returns the raw string of a KindString node.
func (v Value) Str() string { return v.s }

// EnumIndex returns the raw index of a KindEnum node.
func (v Value) EnumIndex() int16 { return v.idx }

// DoubleArray returns a copy of a KindDoubleArray node's elements.
func (v Value) DoubleArray() []float64 {
	out := make([]float64, len(v.fa))
	copy(out, v.fa)
	return out
}

// Int32Array returns a copy of a KindInt32Array node's elements.
func (v Value) Int32Array() []int32 {
	out := make([]int32, len(v.ia))
	copy(out, v.ia)
	return out
}

// StringArray returns a copy of a KindStringArray node's elements.
func (v Value) StringArray() []string {
	out := make([]string, len(v.sa))
	copy(out, v.sa)
	return out
}

// Choices returns a copy of a KindEnum node's choices.
func (v Value) Choices() []string {
	out := make([]string, len(v.choices))
	copy(out, v.choices)
	return out
}

// Equal reports whether two Values have the same kind and contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInvalid:
		return true
	case KindDouble:
		return v.f == o.f
	case KindInt32:
		return v.i == o.i
	case KindString:
		return v.s == o.s
	case KindEnum:
		if v.idx != o.idx || len(v.choices) != len(o.choices) {
			return false
		}
		for i := range v.choices {
			if v.choices[i] != o.choices[i] {
				return false
			}
		}
		return true
	case KindDoubleArray:
		if len(v.fa) != len(o.fa) {
			return false
		}
		for i := range v.fa {
			if v.fa[i] != o.fa[i] {
				return false
			}
		}
		return true
	case KindInt32Array:
		if len(v.ia) != len(o.ia) {
			return false
		}
		for i := range v.ia {
			if v.ia[i] != o.ia[i] {
				return false
			}
		}
		return true
	case KindStringArray:
		if len(v.sa) != len(o.sa) {
			return false
		}
		for i := range v.sa {
			if v.sa[i] != o.sa[i] {
				return false
			}
		}
		return true
	case KindStruct:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for name, child := range v.fields {
			oc, ok := o.fields[name]
			if !ok || !child.Equal(oc) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders the tree in a compact structure dump, one field per line.
func (v Value) String() string {
	var b strings.Builder
	v.render(&b, "", 0)
	return strings.TrimRight(b.String(), "\n")
}

func (v Value) render(b *strings.Builder, name string, depth int) {
	indent := strings.Repeat("    ", depth)
	label := ""
	if name != "" {
		label = " " + name
	}
	switch v.kind {
	case KindInvalid:
		fmt.Fprintf(b, "%s<invalid>%s\n", indent, label)
	case KindDouble:
		fmt.Fprintf(b, "%sdouble%s = %v\n", indent, label, v.f)
	case KindInt32:
		fmt.Fprintf(b, "%sint32%s = %d\n", indent, label, v.i)
	case KindString:
		fmt.Fprintf(b, "%sstring%s = %q\n", indent, label, v.s)
	case KindEnum:
		fmt.Fprintf(b, "%senum%s = %d %v\n", indent, label, v.idx, v.choices)
	case KindDoubleArray:
		fmt.Fprintf(b, "%sdouble[]%s = %v\n", indent, label, v.fa)
	case KindInt32Array:
		fmt.Fprintf(b, "%sint32[]%s = %v\n", indent, label, v.ia)
	case KindStringArray:
		fmt.Fprintf(b, "%sstring[]%s = %v\n", indent, label, v.sa)
	case KindStruct:
		fmt.Fprintf(b, "%sstruct%s {\n", indent, label)
		order := v.order
		if order == nil {
			order = make([]string, 0, len(v.fields))
			for n := range v.fields {
				order = append(order, n)
			}
			sort.Strings(order)
		}
		for _, n := range order {
			v.fields[n].render(b, n, depth+1)
		}
		fmt.Fprintf(b, "%s}\n", indent)
	}
}
