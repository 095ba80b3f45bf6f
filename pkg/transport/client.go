package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrConnectionClosed is returned for sends and receives on a
// connection after Close.
var ErrConnectionClosed = errors.New("connection closed")

// ClientConfig configures outbound PV connections.
type ClientConfig struct {
	// MaxMessageSize bounds a single frame payload. Zero means
	// DefaultMaxMessageSize.
	MaxMessageSize uint32

	// ConnectTimeout applies when the dial context has no deadline of
	// its own. Zero means 30s.
	ConnectTimeout time.Duration

	KeepAlive KeepAliveConfig
}

// Client dials PV servers. One Client can open any number of
// connections; per-connection state lives on ClientConn.
type Client struct {
	config ClientConfig
}

func NewClient(config ClientConfig) (*Client, error) {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	return &Client{config: config}, nil
}

// KeepAliveConfig returns the liveness probing configuration for
// connections this client opens.
func (c *Client) KeepAliveConfig() KeepAliveConfig {
	return c.config.KeepAlive
}

// Connect dials address and returns the framed connection.
func (c *Client) Connect(ctx context.Context, address string) (*ClientConn, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	return &ClientConn{
		conn:    conn,
		framer:  NewFramerWithMaxSize(conn, c.config.MaxMessageSize),
		client:  c,
		closeCh: make(chan struct{}),
	}, nil
}

// ClientConn is the client-side endpoint of one server connection.
// Send and Receive are independently locked, so one goroutine can sit
// in Receive while others Send.
type ClientConn struct {
	conn    net.Conn
	framer  *Framer
	client  *Client
	closeCh chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex
	readMu    sync.Mutex
}

func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes one message frame to the server.
func (c *ClientConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return ErrConnectionClosed
	}
	return c.framer.WriteFrame(data)
}

// Receive blocks for the next frame. A timeout of zero waits
// indefinitely.
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.isClosed() {
		return nil, ErrConnectionClosed
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}
	return c.framer.ReadFrame()
}

// Close tears the connection down. Idempotent.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *ClientConn) isClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// SendPing emits a liveness probe with the given sequence number.
func (c *ClientConn) SendPing(seq uint32) error {
	msg, err := EncodePing(seq)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendClose announces an orderly shutdown to the server.
func (c *ClientConn) SendClose() error {
	msg, err := EncodeClose()
	if err != nil {
		return err
	}
	return c.Send(msg)
}
