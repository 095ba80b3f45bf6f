package transport

import (
	"context"
	"net"
	"time"
)

// The interfaces below pin the exported behavior of this package's
// concrete types. Higher layers mostly take the structs directly;
// tests and fakes can swap in these interfaces instead.

// ServerConnection is one accepted client on the server side.
type ServerConnection interface {
	RemoteAddr() net.Addr

	// Send writes one message frame to the client.
	Send(data []byte) error

	Close() error
}

// ClientConnection is the client side of a link to one server.
type ClientConnection interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// Send writes one message frame to the server.
	Send(data []byte) error

	// Receive blocks for the next message, up to timeout.
	Receive(timeout time.Duration) ([]byte, error)

	Close() error

	// SendPing emits a liveness probe with the given sequence number.
	SendPing(seq uint32) error

	// SendClose announces an orderly shutdown to the peer.
	SendClose() error
}

// TransportServer accepts and tracks client connections.
type TransportServer interface {
	Start(ctx context.Context) error
	Stop() error
	Addr() net.Addr
	ConnectionCount() int
}

// FrameReadWriter moves length-prefixed frames over a stream.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
}

var (
	_ ServerConnection = (*ServerConn)(nil)
	_ ClientConnection = (*ClientConn)(nil)
	_ TransportServer  = (*Server)(nil)
	_ FrameReadWriter  = (*Framer)(nil)
)
