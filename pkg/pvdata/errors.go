package pvdata

import "errors"

// Field access errors.
var (
	// ErrNoSuchField indicates the field path does not resolve to a node.
	ErrNoSuchField = errors.New("no such field")

	// ErrTypeMismatch indicates the stored kind cannot be coerced to the
	// requested kind.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrNotAnArray indicates an array accessor was used on a scalar node.
	ErrNotAnArray = errors.New("field is not an array")

	// ErrInvalidValue indicates the Value is empty or uninitialized.
	ErrInvalidValue = errors.New("value is not valid")
)
