package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusNoSuchPV indicates no source serves the requested PV name.
	StatusNoSuchPV Status = 1

	// StatusNotOpen indicates the PV exists but currently holds no value.
	StatusNotOpen Status = 2

	// StatusNoSuchField indicates the field path does not resolve.
	StatusNoSuchField Status = 3

	// StatusTypeMismatch indicates the value kind cannot be coerced.
	StatusTypeMismatch Status = 4

	// StatusNotAnArray indicates a scalar field was read as an array.
	StatusNotAnArray Status = 5

	// StatusInvalidValue indicates a value violates a constraint,
	// such as an enum index outside the choices range.
	StatusInvalidValue Status = 6

	// StatusReadOnly indicates an attempt to write a read-only PV.
	StatusReadOnly Status = 7

	// StatusNoSuchMonitor indicates the subscription ID is unknown.
	StatusNoSuchMonitor Status = 8

	// StatusUnsupported indicates the operation is not supported by the PV.
	StatusUnsupported Status = 9

	// StatusRemoteError indicates the server-side handler failed.
	StatusRemoteError Status = 10

	// StatusTimeout indicates the operation timed out.
	StatusTimeout Status = 11
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusNoSuchPV:
		return "NO_SUCH_PV"
	case StatusNotOpen:
		return "NOT_OPEN"
	case StatusNoSuchField:
		return "NO_SUCH_FIELD"
	case StatusTypeMismatch:
		return "TYPE_MISMATCH"
	case StatusNotAnArray:
		return "NOT_AN_ARRAY"
	case StatusInvalidValue:
		return "INVALID_VALUE"
	case StatusReadOnly:
		return "READ_ONLY"
	case StatusNoSuchMonitor:
		return "NO_SUCH_MONITOR"
	case StatusUnsupported:
		return "UNSUPPORTED"
	case StatusRemoteError:
		return "REMOTE_ERROR"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}
