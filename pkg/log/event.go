package log

import (
	"time"

	"github.com/pvaccess-protocol/pva-go/pkg/wire"
)

// Event is one protocol log record. Events are written with CBOR
// integer keys; the key numbers are the capture file format and must
// not be renumbered.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint"`
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`

	// LocalRole says which side of the connection wrote this record.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address as IP:port.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// PV names the process variable the event concerns, when it
	// concerns one.
	PV string `cbor:"8,keyasint,omitempty"`

	// Exactly one payload is set, matching Category.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction says whether the event describes inbound or outbound traffic.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer is the protocol layer that captured the event.
type Layer uint8

const (
	LayerTransport Layer = 0 // raw frames
	LayerWire      Layer = 1 // decoded messages
	LayerService   Layer = 2 // PV and monitor lifecycle
)

func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event payload.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryControl Category = 1
	CategoryState   Category = 2
	CategoryError   Category = 3
)

func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role distinguishes the serving side from the accessing side.
type Role uint8

const (
	RoleServer Role = 0
	RoleClient Role = 1
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "SERVER"
	case RoleClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent records one raw frame at the transport layer.
type FrameEvent struct {
	// Size is the full frame size on the wire, length prefix included.
	Size int `cbor:"1,keyasint"`

	// Data holds the payload bytes, truncated for large frames.
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent records one decoded message at the wire layer.
type MessageEvent struct {
	Type MessageType `cbor:"1,keyasint"`

	// MessageID correlates a response with its request. Zero for
	// notifications.
	MessageID uint32 `cbor:"2,keyasint"`

	// Request fields.
	Operation *wire.Operation `cbor:"3,keyasint,omitempty"`
	PV        string          `cbor:"4,keyasint,omitempty"`

	// Response fields.
	Status *wire.Status `cbor:"6,keyasint,omitempty"`

	// Notification fields.
	SubscriptionID *uint32         `cbor:"7,keyasint,omitempty"`
	EventKind      *wire.EventKind `cbor:"10,keyasint,omitempty"`

	Payload any `cbor:"8,keyasint,omitempty"`

	// ProcessingTime spans request receipt to response send, recorded
	// on responses only.
	ProcessingTime *time.Duration `cbor:"9,keyasint,omitempty"`
}

// MessageType is the wire message kind.
type MessageType uint8

const (
	MessageTypeRequest      MessageType = 0
	MessageTypeResponse     MessageType = 1
	MessageTypeNotification MessageType = 2
)

func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeNotification:
		return "NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent records a lifecycle transition at the service layer.
type StateChangeEvent struct {
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState may be empty for the initial transition.
	OldState string `cbor:"2,keyasint,omitempty"`
	NewState string `cbor:"3,keyasint"`
	Reason   string `cbor:"4,keyasint,omitempty"`
}

// StateEntity names what kind of thing changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = 0
	StateEntityMonitor    StateEntity = 1
	StateEntityPV         StateEntity = 2
)

func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityMonitor:
		return "MONITOR"
	case StateEntityPV:
		return "PV"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent records a ping, pong, or close on the control channel.
type ControlMsgEvent struct {
	Type ControlMsgType `cbor:"1,keyasint"`

	// CloseReason carries the reason code on close messages.
	CloseReason *uint8 `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType is the control message kind.
type ControlMsgType uint8

const (
	ControlMsgPing  ControlMsgType = 0
	ControlMsgPong  ControlMsgType = 1
	ControlMsgClose ControlMsgType = 2
)

func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData records a failure observed at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code carries a protocol status code when one applies.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context names the operation that was in flight.
	Context string `cbor:"4,keyasint,omitempty"`
}
