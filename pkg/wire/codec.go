package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Encoder and decoder modes for PV messages. Encoding is deterministic
// so identical messages produce identical bytes; decoding is lenient so
// fields added by newer minor protocol revisions pass through quietly.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value with the protocol's encoder mode.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes with the protocol's decoder mode.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder returns a streaming encoder in the protocol's mode.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a streaming decoder in the protocol's mode.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// EncodeRequest validates and encodes a request.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return Marshal(req)
}

// DecodeRequest decodes and validates a request.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response.
func EncodeResponse(resp *Response) ([]byte, error) {
	return Marshal(resp)
}

// DecodeResponse decodes a response.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// notificationWire is the on-wire shape of a notification. The fixed
// MessageID field is what lets PeekMessageType spot notifications
// without a full decode.
type notificationWire struct {
	MessageID      uint32    `cbor:"1,keyasint"`
	SubscriptionID uint32    `cbor:"2,keyasint"`
	Kind           EventKind `cbor:"3,keyasint"`
	Value          *Value    `cbor:"4,keyasint,omitempty"`
	Reason         string    `cbor:"5,keyasint,omitempty"`
}

// EncodeNotification encodes a monitor notification. The reserved
// notification message ID is filled in here.
func EncodeNotification(notif *Notification) ([]byte, error) {
	return Marshal(notificationWire{
		MessageID:      NotificationMessageID,
		SubscriptionID: notif.SubscriptionID,
		Kind:           notif.Kind,
		Value:          notif.Value,
		Reason:         notif.Reason,
	})
}

// DecodeNotification decodes a monitor notification, rejecting frames
// that do not carry the reserved notification message ID.
func DecodeNotification(data []byte) (*Notification, error) {
	var w notificationWire
	if err := Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	if w.MessageID != NotificationMessageID {
		return nil, fmt.Errorf("not a notification message: messageId=%d", w.MessageID)
	}
	return &Notification{
		SubscriptionID: w.SubscriptionID,
		Kind:           w.Kind,
		Value:          w.Value,
		Reason:         w.Reason,
	}, nil
}

// EncodeControlMessage encodes a ping, pong, or close under the
// reserved control message ID.
func EncodeControlMessage(msg *ControlMessage) ([]byte, error) {
	return Marshal(struct {
		MessageID uint32             `cbor:"1,keyasint"`
		Type      ControlMessageType `cbor:"2,keyasint"`
		Sequence  uint32             `cbor:"3,keyasint,omitempty"`
	}{
		MessageID: ControlMessageID,
		Type:      msg.Type,
		Sequence:  msg.Sequence,
	})
}

// DecodeControlMessage decodes a control frame.
func DecodeControlMessage(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode control message: %w", err)
	}
	return &msg, nil
}

// DecodePayload converts a loosely decoded payload (map[any]any after a
// generic CBOR round-trip) into a typed payload struct by re-encoding.
// Returns false when there was no payload at all.
func DecodePayload(payload any, out any) (bool, error) {
	if payload == nil {
		return false, nil
	}
	data, err := Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to re-encode payload: %w", err)
	}
	if err := Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode payload: %w", err)
	}
	return true, nil
}

// MessageType classifies a frame before full decoding.
type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeRequest
	MessageTypeResponse
	MessageTypeNotification
	MessageTypeControl
)

// PeekMessageType classifies a frame from its message ID and the shape
// of key 3, without decoding the payload:
//
//   - messageId 0 is a notification
//   - messageId ControlMessageID is a control frame
//   - key 3 holding a string (the pv name) marks a request
//   - anything else is a response
func PeekMessageType(data []byte) (MessageType, error) {
	var peek struct {
		MessageID uint32 `cbor:"1,keyasint"`
		Field3    any    `cbor:"3,keyasint,omitempty"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return MessageTypeUnknown, fmt.Errorf("failed to peek message: %w", err)
	}

	switch peek.MessageID {
	case NotificationMessageID:
		return MessageTypeNotification, nil
	case ControlMessageID:
		return MessageTypeControl, nil
	}

	if _, ok := peek.Field3.(string); ok {
		return MessageTypeRequest, nil
	}
	return MessageTypeResponse, nil
}

// Clone deep-copies a value through a CBOR round-trip, dropping shared
// references.
func Clone[T any](v T) (T, error) {
	var result T
	data, err := Marshal(v)
	if err != nil {
		return result, err
	}
	err = Unmarshal(data, &result)
	return result, err
}

// Equal compares two values by their deterministic encodings.
func Equal(a, b any) bool {
	dataA, errA := Marshal(a)
	dataB, errB := Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(dataA, dataB)
}
