package wire

import (
	"fmt"
)

// CBOR map keys for message encoding.
// All pva messages use integer keys for efficiency.
const (
	// Common message keys
	KeyMessageID  = 1
	KeyOpOrStatus = 2 // Operation (request) or Status (response)
	KeyPVName     = 3 // Request only
	KeyPayload    = 4

	// Notification-specific keys (messageId=0 indicates notification)
	KeySubscriptionID = 2
	KeyEventKind      = 3
	KeyValue          = 4
	KeyReason         = 5
)

// MessageID 0 is reserved to indicate a notification message.
const NotificationMessageID uint32 = 0

// ControlMessageID marks transport-level control messages (ping/pong/close).
const ControlMessageID uint32 = 0xFFFFFFFF

// Request represents a pva request message from client to server.
//
// CBOR encoding:
//
//	{
//	  1: messageId,  // uint32
//	  2: operation,  // uint8: 1=Get, 2=Put, 3=Info, 4=Rpc, 5=Monitor, 6=MonitorCancel
//	  3: pv,         // string: process variable name
//	  4: payload     // operation-specific data
//	}
type Request struct {
	MessageID uint32    `cbor:"1,keyasint"`
	Operation Operation `cbor:"2,keyasint"`
	PV        string    `cbor:"3,keyasint"`
	Payload   any       `cbor:"4,keyasint,omitempty"`
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.MessageID == NotificationMessageID {
		return fmt.Errorf("messageId 0 is reserved for notifications")
	}
	if r.MessageID == ControlMessageID {
		return fmt.Errorf("messageId %d is reserved for control messages", ControlMessageID)
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	if r.PV == "" && r.Operation != OpMonitorCancel {
		return fmt.Errorf("missing pv name")
	}
	return nil
}

// Response represents a pva response message from server to client.
//
// CBOR encoding:
//
//	{
//	  1: messageId,  // uint32: matches request
//	  2: status,     // uint8: 0=success, or error code
//	  4: payload     // operation-specific response data
//	}
type Response struct {
	MessageID uint32 `cbor:"1,keyasint"`
	Status    Status `cbor:"2,keyasint"`
	Payload   any    `cbor:"4,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// EventKind discriminates monitor notification events.
type EventKind uint8

const (
	// EventData carries a new value snapshot for the subscription.
	EventData EventKind = 1

	// EventFinished signals the server closed the PV; no further
	// events follow on this subscription.
	EventFinished EventKind = 2

	// EventError signals a server-side subscription failure described
	// by the reason text. The subscription is dead afterwards.
	EventError EventKind = 3
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventFinished:
		return "finished"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification represents a monitor update from server to client.
//
// CBOR encoding:
//
//	{
//	  1: 0,               // messageId 0 = notification
//	  2: subscriptionId,  // uint32
//	  3: kind,            // uint8: 1=data, 2=finished, 3=error
//	  4: value,           // Value transfer structure (data events)
//	  5: reason           // string (error events)
//	}
type Notification struct {
	SubscriptionID uint32    `cbor:"2,keyasint"`
	Kind           EventKind `cbor:"3,keyasint"`
	Value          *Value    `cbor:"4,keyasint,omitempty"`
	Reason         string    `cbor:"5,keyasint,omitempty"`
}

// GetPayload represents the payload for a Get request.
//
// CBOR encoding:
//
//	{
//	  1: field  // string: optional sub-field path ("" = whole value)
//	}
type GetPayload struct {
	Field string `cbor:"1,keyasint,omitempty"`
}

// PutPayload represents the payload for a Put request.
//
// CBOR encoding:
//
//	{
//	  1: field,  // string: optional sub-field path ("" = primary value)
//	  2: value   // Value transfer structure
//	}
type PutPayload struct {
	Field string `cbor:"1,keyasint,omitempty"`
	Value *Value `cbor:"2,keyasint"`
}

// ValuePayload carries a single value tree, used by Get/Info/Rpc
// responses and by the Rpc request arguments.
type ValuePayload struct {
	Value *Value `cbor:"1,keyasint"`
}

// MonitorPayload represents the payload for a Monitor request.
//
// CBOR encoding:
//
//	{
//	  1: field  // string: optional sub-field path ("" = whole value)
//	}
type MonitorPayload struct {
	Field string `cbor:"1,keyasint,omitempty"`
}

// MonitorResponsePayload represents the payload for a Monitor response.
//
// CBOR encoding:
//
//	{
//	  1: subscriptionId,  // uint32
//	  2: current          // current value (priming event), absent if unopened
//	}
type MonitorResponsePayload struct {
	SubscriptionID uint32 `cbor:"1,keyasint"`
	Current        *Value `cbor:"2,keyasint,omitempty"`
}

// MonitorCancelPayload represents the payload for a MonitorCancel request.
//
// CBOR encoding:
//
//	{
//	  1: subscriptionId  // uint32: subscription to cancel
//	}
type MonitorCancelPayload struct {
	SubscriptionID uint32 `cbor:"1,keyasint"`
}

// ErrorPayload represents additional error information in a response.
//
// CBOR encoding:
//
//	{
//	  1: message  // string: human-readable error message
//	}
type ErrorPayload struct {
	Message string `cbor:"1,keyasint,omitempty"`
}

// ControlMessage represents a transport-level control message.
// These are separate from the request/response/notification model.
type ControlMessage struct {
	Type     ControlMessageType `cbor:"2,keyasint"`
	Sequence uint32             `cbor:"3,keyasint,omitempty"`
}

// ControlMessageType represents the type of control message.
type ControlMessageType uint8

const (
	// ControlPing is sent to check connection liveness.
	ControlPing ControlMessageType = 1

	// ControlPong is the response to a ping.
	ControlPong ControlMessageType = 2

	// ControlClose initiates graceful connection close.
	ControlClose ControlMessageType = 3
)

// String returns the control message type name.
func (t ControlMessageType) String() string {
	switch t {
	case ControlPing:
		return "ping"
	case ControlPong:
		return "pong"
	case ControlClose:
		return "close"
	default:
		return "unknown"
	}
}
