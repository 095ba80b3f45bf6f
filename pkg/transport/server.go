package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pvaccess-protocol/pva-go/pkg/log"
	"github.com/pvaccess-protocol/pva-go/pkg/wire"
)

// DefaultPort is the TCP port PV servers listen on by default.
const DefaultPort = 5075

// ServerConfig configures the TCP listener side of a PV server.
type ServerConfig struct {
	// Address in host:port form. Empty means all interfaces on
	// DefaultPort; port 0 binds an ephemeral port.
	Address string

	// MaxMessageSize bounds a single frame payload. Zero means
	// DefaultMaxMessageSize.
	MaxMessageSize uint32

	// Logger captures protocol events. Nil disables capture.
	Logger log.Logger

	// Connection lifecycle hooks. All optional; invoked from the
	// connection's own goroutine.
	OnConnect    func(conn *ServerConn)
	OnDisconnect func(conn *ServerConn)
	OnMessage    func(conn *ServerConn, msg []byte)
	OnError      func(conn *ServerConn, err error)
}

// Server accepts PV client connections and feeds their frames to the
// configured hooks. Control messages (ping, close) are answered here
// and never reach OnMessage.
type Server struct {
	config   ServerConfig
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewServer(config ServerConfig) (*Server, error) {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}, nil
}

// Start binds the listener and begins accepting in the background.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every active connection, then waits for
// all connection goroutines to drain.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port, or 0 if not listening.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	if tcpAddr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcpAddr.Port
	}
	return 0
}

func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			// Accept fails with a closed-listener error during Stop;
			// only report errors while still running.
			if s.running.Load() && s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept error: %w", err))
			}
			continue
		}

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn owns one accepted connection from registration to teardown.
func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.New().String()
	remoteAddr := conn.RemoteAddr()

	framer := NewFramerWithMaxSize(conn, s.config.MaxMessageSize)
	if s.config.Logger != nil {
		framer.SetLogger(s.config.Logger, connID)
	}

	sconn := &ServerConn{
		conn:       conn,
		framer:     framer,
		server:     s,
		closeCh:    make(chan struct{}),
		remoteAddr: remoteAddr,
		connID:     connID,
	}

	logConnState(s.config.Logger, connID, remoteAddr.String(), "", "CONNECTED")

	s.connsMu.Lock()
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	logConnState(s.config.Logger, connID, remoteAddr.String(), "CONNECTED", "DISCONNECTED")

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

// ServerConn is the server-side endpoint of one client connection.
type ServerConn struct {
	conn       net.Conn
	framer     *Framer
	server     *Server
	closeCh    chan struct{}
	closeOnce  sync.Once
	remoteAddr net.Addr
	connID     string

	writeMu sync.Mutex
}

func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// ConnID returns the connection's UUID, shared with capture events.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// Send writes one message frame to the client.
func (c *ServerConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteFrame(data)
}

// Close tears the connection down. Idempotent.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *ServerConn) readLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case <-c.server.ctx.Done():
			return
		default:
		}

		data, err := c.framer.ReadFrame()
		if err != nil {
			// Suppress the read error that follows our own Close.
			if c.server.config.OnError != nil && c.server.running.Load() {
				select {
				case <-c.closeCh:
				default:
					c.server.config.OnError(c, err)
				}
			}
			return
		}

		// Control messages carry a reserved message ID; peek before
		// dispatch so a request is never misread as a control message.
		msgType, peekErr := wire.PeekMessageType(data)
		if peekErr == nil && msgType == wire.MessageTypeControl {
			if ctrlMsg, err := wire.DecodeControlMessage(data); err == nil {
				c.handleControl(ctrlMsg)
				continue
			}
		}

		if c.server.config.OnMessage != nil {
			c.server.config.OnMessage(c, data)
		}
	}
}

// handleControl answers ping and close; the client drives keep-alive,
// so inbound pongs are ignored.
func (c *ServerConn) handleControl(msg *wire.ControlMessage) {
	logger := c.server.config.Logger
	logControlMsg(logger, c.connID, c.remoteAddr.String(), msg.Type, log.DirectionIn)

	switch msg.Type {
	case wire.ControlPing:
		pongMsg, _ := EncodePong(msg.Sequence)
		c.Send(pongMsg)
		logControlMsg(logger, c.connID, c.remoteAddr.String(), wire.ControlPong, log.DirectionOut)

	case wire.ControlClose:
		closeMsg, _ := EncodeClose()
		c.Send(closeMsg)
		logControlMsg(logger, c.connID, c.remoteAddr.String(), wire.ControlClose, log.DirectionOut)
		c.Close()
	}
}
