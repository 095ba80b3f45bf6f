package wire

// Operation represents a pva protocol operation.
type Operation uint8

const (
	// OpGet reads the current value of a process variable.
	OpGet Operation = 1

	// OpPut writes a new value to a process variable field.
	OpPut Operation = 2

	// OpInfo retrieves the full structure of a process variable,
	// including metadata sections.
	OpInfo Operation = 3

	// OpRpc executes a remote procedure against a process variable.
	OpRpc Operation = 4

	// OpMonitor opens a subscription on a process variable.
	OpMonitor Operation = 5

	// OpMonitorCancel closes a subscription.
	OpMonitorCancel Operation = 6
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpGet:
		return "Get"
	case OpPut:
		return "Put"
	case OpInfo:
		return "Info"
	case OpRpc:
		return "Rpc"
	case OpMonitor:
		return "Monitor"
	case OpMonitorCancel:
		return "MonitorCancel"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is a valid pva operation.
func (o Operation) IsValid() bool {
	return o >= OpGet && o <= OpMonitorCancel
}
