package client

import (
	"errors"
	"fmt"

	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
	"github.com/pvaccess-protocol/pva-go/pkg/wire"
)

// Client-side errors.
var (
	// ErrTimeout indicates an operation did not complete in time.
	ErrTimeout = errors.New("operation timed out")

	// ErrNotReady indicates Result was called on a pending operation.
	ErrNotReady = errors.New("operation not ready")

	// ErrCancelled indicates the operation was cancelled by the caller.
	ErrCancelled = errors.New("operation cancelled")

	// ErrContextClosed indicates a call on a closed Context.
	ErrContextClosed = errors.New("context closed")

	// ErrNoSuchPV indicates no configured server serves the PV name.
	ErrNoSuchPV = errors.New("no such pv")
)

// ClientError indicates local API misuse, such as reading a stopped
// monitor or reusing a consumed rpc builder.
type ClientError string

// Error implements the error interface.
func (e ClientError) Error() string {
	return string(e)
}

// EventKind classifies non-data monitor events.
type EventKind uint8

const (
	// EventConnected signals the subscription reached its server.
	EventConnected EventKind = 1

	// EventDisconnected signals transport loss to the serving peer.
	EventDisconnected EventKind = 2

	// EventRemoteError signals an explicit server-side subscription
	// fault. Ordinary server shutdown produces Disconnected, not this.
	EventRemoteError EventKind = 3

	// EventFinished signals the server ended the subscription, such as
	// when the PV was closed.
	EventFinished EventKind = 4
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "Connected"
	case EventDisconnected:
		return "Disconnected"
	case EventRemoteError:
		return "RemoteError"
	case EventFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// EventError is a non-data monitor queue entry surfaced from Pop.
type EventError struct {
	Kind   EventKind
	Reason string
}

// Error implements the error interface.
func (e *EventError) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// RemoteError is a server-reported failure for a get/put/info/rpc call.
type RemoteError struct {
	Status  wire.Status
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error: %s", e.Status)
	}
	return fmt.Sprintf("remote error: %s: %s", e.Status, e.Message)
}

// statusError maps a non-success response onto the client taxonomy.
// Field-level statuses map to the pvdata sentinels so callers can use
// errors.Is uniformly for local and remote field failures.
func statusError(resp *wire.Response, pv string) error {
	switch resp.Status {
	case wire.StatusSuccess:
		return nil
	case wire.StatusNoSuchPV:
		return fmt.Errorf("%w: %q", ErrNoSuchPV, pv)
	case wire.StatusNoSuchField:
		return fmt.Errorf("%w: %q", pvdata.ErrNoSuchField, pv)
	case wire.StatusTypeMismatch:
		return fmt.Errorf("%w: %q", pvdata.ErrTypeMismatch, pv)
	case wire.StatusNotAnArray:
		return fmt.Errorf("%w: %q", pvdata.ErrNotAnArray, pv)
	case wire.StatusInvalidValue:
		return fmt.Errorf("%w: %q", pvdata.ErrInvalidValue, pv)
	case wire.StatusTimeout:
		return fmt.Errorf("%w: %q", ErrTimeout, pv)
	default:
		var payload wire.ErrorPayload
		wire.DecodePayload(resp.Payload, &payload)
		return &RemoteError{Status: resp.Status, Message: payload.Message}
	}
}
