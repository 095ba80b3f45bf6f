package transport

import (
	"time"

	"github.com/pvaccess-protocol/pva-go/pkg/log"
	"github.com/pvaccess-protocol/pva-go/pkg/wire"
)

// Control message types, re-exported for callers that only deal with
// the transport layer.
const (
	ControlPing  = wire.ControlPing
	ControlPong  = wire.ControlPong
	ControlClose = wire.ControlClose
)

// EncodePing encodes a liveness probe with the given sequence number.
func EncodePing(seq uint32) ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{
		Type:     wire.ControlPing,
		Sequence: seq,
	})
}

// EncodePong encodes the answer to a ping, echoing its sequence number.
func EncodePong(seq uint32) ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{
		Type:     wire.ControlPong,
		Sequence: seq,
	})
}

// EncodeClose encodes an orderly shutdown announcement.
func EncodeClose() ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{Type: wire.ControlClose})
}

// DecodeControlMessage decodes a control frame into its type and
// sequence number.
func DecodeControlMessage(data []byte) (wire.ControlMessageType, uint32, error) {
	msg, err := wire.DecodeControlMessage(data)
	if err != nil {
		return 0, 0, err
	}
	return msg.Type, msg.Sequence, nil
}

// controlLogType maps a wire control type onto the capture schema.
// ok is false for types the schema does not record.
func controlLogType(t wire.ControlMessageType) (logType log.ControlMsgType, ok bool) {
	switch t {
	case wire.ControlPing:
		return log.ControlMsgPing, true
	case wire.ControlPong:
		return log.ControlMsgPong, true
	case wire.ControlClose:
		return log.ControlMsgClose, true
	default:
		return 0, false
	}
}

// logControlMsg emits a control message capture event if a logger is set.
func logControlMsg(logger log.Logger, connID string, remoteAddr string,
	msgType wire.ControlMessageType, direction log.Direction) {
	if logger == nil {
		return
	}
	lt, ok := controlLogType(msgType)
	if !ok {
		return
	}
	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		RemoteAddr:   remoteAddr,
		ControlMsg:   &log.ControlMsgEvent{Type: lt},
	})
}

// logConnState emits a connection lifecycle capture event if a logger
// is set.
func logConnState(logger log.Logger, connID string, remoteAddr string, oldState, newState string) {
	if logger == nil {
		return
	}
	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   remoteAddr,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}
