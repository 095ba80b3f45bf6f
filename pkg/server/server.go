package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pvaccess-protocol/pva-go/pkg/config"
	"github.com/pvaccess-protocol/pva-go/pkg/log"
	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
	"github.com/pvaccess-protocol/pva-go/pkg/transport"
	"github.com/pvaccess-protocol/pva-go/pkg/wire"
)

// ErrAlreadyRunning indicates Start on a running server.
var ErrAlreadyRunning = errors.New("server already running")

// defaultSourceOrder places the built-in source behind any source added
// with a negative order.
const defaultSourceOrder = 0

// namedSource is a Source registered under a name with a priority.
type namedSource struct {
	name   string
	source Source
	order  int
}

// subscription tracks one active monitor on one connection. Events are
// queued under mu by PV notify callbacks and drained in order by a
// dedicated sender goroutine, so a slow or blocked client connection
// never stalls posts to the PV.
type subscription struct {
	id     uint32
	pvName string
	pv     *SharedPV
	conn   *transport.ServerConn

	mu      sync.Mutex
	pending []pvUpdate
	wake    chan struct{}
	stop    chan struct{}
	stopped sync.Once
}

// enqueue appends one event and signals the sender.
func (sub *subscription) enqueue(update pvUpdate) {
	sub.mu.Lock()
	sub.pending = append(sub.pending, update)
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

// stopSender halts the sender goroutine. Queued events are discarded.
// Safe to call more than once.
func (sub *subscription) stopSender() {
	sub.stopped.Do(func() { close(sub.stop) })
}

// Server serves process variables over TCP. PVs are resolved through
// registered sources; the AddPV/RemovePV conveniences operate on a
// built-in StaticSource.
type Server struct {
	cfg    config.Server
	logger log.Logger

	ts *transport.Server

	defaultSrc *StaticSource
	sources    []namedSource
	srcMu      sync.RWMutex

	subs      map[uint32]*subscription
	subsMu    sync.Mutex
	nextSubID atomic.Uint32

	running atomic.Bool
}

// New creates a server with the given configuration. The server owns a
// default static source for AddPV/RemovePV.
func New(cfg config.Server) *Server {
	defaultSrc := NewStaticSource()
	return &Server{
		cfg:        cfg,
		defaultSrc: defaultSrc,
		sources: []namedSource{
			{name: "server", source: defaultSrc, order: defaultSourceOrder},
		},
		subs: make(map[uint32]*subscription),
	}
}

// FromEnv creates a server configured from the environment.
func FromEnv() (*Server, error) {
	cfg, err := config.ServerFromEnv()
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

// NewIsolated creates a server bound to the loopback interface on an
// ephemeral port. Intended for tests.
func NewIsolated() *Server {
	return New(config.IsolatedServer())
}

// SetLogger installs a protocol logger. Must be called before Start.
func (s *Server) SetLogger(logger log.Logger) {
	s.logger = logger
}

// Start binds the listener and begins serving requests.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrAlreadyRunning
	}

	ts, err := transport.NewServer(transport.ServerConfig{
		Address:      s.cfg.ListenAddress(),
		Logger:       s.logger,
		OnMessage:    s.handleMessage,
		OnDisconnect: s.handleDisconnect,
	})
	if err != nil {
		return err
	}

	if err := ts.Start(ctx); err != nil {
		return err
	}

	s.ts = ts
	s.running.Store(true)
	return nil
}

// Stop closes the listener and all client connections. Registered PVs
// stay open so the server can be restarted.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)

	err := s.ts.Stop()

	s.subsMu.Lock()
	orphaned := make([]*subscription, 0, len(s.subs))
	for id, sub := range s.subs {
		orphaned = append(orphaned, sub)
		delete(s.subs, id)
	}
	s.subsMu.Unlock()

	// Detach outside subsMu: notify callbacks run under the PV lock and
	// take subsMu when a subscription ends.
	for _, sub := range orphaned {
		sub.pv.detach(sub.id)
		sub.stopSender()
	}

	return err
}

// TCPPort returns the bound port, or 0 if the server is not running.
func (s *Server) TCPPort() int {
	if s.ts == nil {
		return 0
	}
	return s.ts.Port()
}

// AddPV registers pv under name on the default source. An existing
// registration for name is replaced.
func (s *Server) AddPV(name string, pv *SharedPV) {
	s.defaultSrc.AddPV(name, pv)
}

// RemovePV drops name from the default source. Removing an unknown
// name is a no-op.
func (s *Server) RemovePV(name string) {
	s.defaultSrc.RemovePV(name)
}

// AddSource registers an additional PV source. Sources are consulted
// in ascending order; on equal order, registration order decides. The
// built-in default source has order 0.
func (s *Server) AddSource(name string, src Source, order int) {
	s.srcMu.Lock()
	defer s.srcMu.Unlock()

	s.sources = append(s.sources, namedSource{name: name, source: src, order: order})
	sort.SliceStable(s.sources, func(i, j int) bool {
		return s.sources[i].order < s.sources[j].order
	})
}

// CreateMailbox registers a new mailbox PV under name and returns it
// for the caller to open.
func (s *Server) CreateMailbox(name string) *SharedPV {
	pv := NewMailbox()
	s.defaultSrc.AddPV(name, pv)
	return pv
}

// PVNames returns the sorted names registered on the default source.
func (s *Server) PVNames() []string {
	return s.defaultSrc.Names()
}

// LookupPV resolves a PV name through all sources in priority order.
func (s *Server) LookupPV(name string) (*SharedPV, bool) {
	return s.lookup(name)
}

// CreateReadonlyDouble registers an opened readonly double PV.
func (s *Server) CreateReadonlyDouble(name string, initial float64, meta pvdata.Metadata) (*SharedPV, error) {
	pv := NewReadonly()
	if err := pv.OpenDouble(initial, meta); err != nil {
		return nil, err
	}
	s.defaultSrc.AddPV(name, pv)
	return pv, nil
}

// lookup resolves a PV name through the sources in priority order.
func (s *Server) lookup(name string) (*SharedPV, bool) {
	s.srcMu.RLock()
	defer s.srcMu.RUnlock()

	for _, ns := range s.sources {
		if pv, ok := ns.source.Lookup(name); ok {
			return pv, true
		}
	}
	return nil, false
}

// handleMessage dispatches one decoded request frame.
func (s *Server) handleMessage(conn *transport.ServerConn, data []byte) {
	start := time.Now()

	req, err := wire.DecodeRequest(data)
	if err != nil {
		s.logError(conn, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		s.logError(conn, fmt.Errorf("invalid request: %w", err))
		return
	}

	s.logRequest(conn, req)

	resp := s.dispatch(conn, req)
	resp.MessageID = req.MessageID

	encoded, err := wire.EncodeResponse(resp)
	if err != nil {
		s.logError(conn, fmt.Errorf("encode response: %w", err))
		return
	}
	if err := conn.Send(encoded); err != nil {
		s.logError(conn, fmt.Errorf("send response: %w", err))
		return
	}

	s.logResponse(conn, req, resp, time.Since(start))
}

// dispatch routes a validated request to its operation handler.
func (s *Server) dispatch(conn *transport.ServerConn, req *wire.Request) *wire.Response {
	if req.Operation == wire.OpMonitorCancel {
		return s.handleMonitorCancel(req)
	}

	pv, ok := s.lookup(req.PV)
	if !ok {
		return &wire.Response{Status: wire.StatusNoSuchPV}
	}

	switch req.Operation {
	case wire.OpGet:
		return s.handleGet(pv, req)
	case wire.OpPut:
		return s.handlePut(pv, req)
	case wire.OpInfo:
		return s.handleInfo(pv)
	case wire.OpRpc:
		return s.handleRpc(pv, req)
	case wire.OpMonitor:
		return s.handleMonitor(conn, pv, req)
	default:
		return &wire.Response{Status: wire.StatusUnsupported}
	}
}

func (s *Server) handleGet(pv *SharedPV, req *wire.Request) *wire.Response {
	var payload wire.GetPayload
	if _, err := wire.DecodePayload(req.Payload, &payload); err != nil {
		return errorResponse(err)
	}

	value, err := pv.Fetch()
	if err != nil {
		return errorResponse(err)
	}

	if payload.Field != "" {
		value, err = value.Lookup(payload.Field)
		if err != nil {
			return errorResponse(err)
		}
	}

	return valueResponse(value)
}

func (s *Server) handlePut(pv *SharedPV, req *wire.Request) *wire.Response {
	var payload wire.PutPayload
	ok, err := wire.DecodePayload(req.Payload, &payload)
	if err != nil {
		return errorResponse(err)
	}
	if !ok || payload.Value == nil {
		return errorResponse(fmt.Errorf("%w: put without value", pvdata.ErrInvalidValue))
	}

	// Puts address the primary value; a field path other than the
	// primary value is rejected.
	if payload.Field != "" && payload.Field != "value" {
		return errorResponse(fmt.Errorf("%w: %q", pvdata.ErrNoSuchField, payload.Field))
	}

	value, err := payload.Value.ToValue()
	if err != nil {
		return errorResponse(err)
	}

	if err := pv.applyPut(value); err != nil {
		return errorResponse(err)
	}
	return &wire.Response{Status: wire.StatusSuccess}
}

func (s *Server) handleInfo(pv *SharedPV) *wire.Response {
	value, err := pv.Fetch()
	if err != nil {
		return errorResponse(err)
	}
	return valueResponse(value)
}

func (s *Server) handleRpc(pv *SharedPV, req *wire.Request) *wire.Response {
	var payload wire.ValuePayload
	ok, err := wire.DecodePayload(req.Payload, &payload)
	if err != nil {
		return errorResponse(err)
	}

	var args pvdata.Value
	if ok && payload.Value != nil {
		args, err = payload.Value.ToValue()
		if err != nil {
			return errorResponse(err)
		}
	}

	result, err := pv.callRPC(args)
	if err != nil {
		if errors.Is(err, ErrNoRPCHandler) {
			return &wire.Response{Status: wire.StatusUnsupported}
		}
		return &wire.Response{
			Status:  wire.StatusRemoteError,
			Payload: &wire.ErrorPayload{Message: err.Error()},
		}
	}
	return valueResponse(result)
}

func (s *Server) handleMonitor(conn *transport.ServerConn, pv *SharedPV, req *wire.Request) *wire.Response {
	subID := s.nextSubID.Add(1)

	sub := &subscription{
		id:     subID,
		pvName: req.PV,
		pv:     pv,
		conn:   conn,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}

	s.subsMu.Lock()
	s.subs[subID] = sub
	s.subsMu.Unlock()

	// Runs under the PV lock: only enqueue, never send.
	notify := func(update pvUpdate) {
		sub.enqueue(update)
		if update.Kind != wire.EventData {
			// Finished and error events end the subscription.
			s.subsMu.Lock()
			delete(s.subs, subID)
			s.subsMu.Unlock()
		}
	}

	resp := &wire.Response{Status: wire.StatusSuccess}
	pv.attach(subID, notify, func(current pvdata.Value, open bool) {
		payload := &wire.MonitorResponsePayload{SubscriptionID: subID}
		if open {
			if wv, err := wire.FromValue(current); err == nil {
				payload.Current = wv
			}
		}
		resp.Payload = payload
	})

	go s.senderLoop(sub)
	return resp
}

// senderLoop drains one subscription's queue in order, exiting after a
// finished or error event or once the subscription is stopped.
func (s *Server) senderLoop(sub *subscription) {
	for {
		select {
		case <-sub.stop:
			return
		case <-sub.wake:
		}

		for {
			sub.mu.Lock()
			if len(sub.pending) == 0 {
				sub.mu.Unlock()
				break
			}
			update := sub.pending[0]
			sub.pending = sub.pending[1:]
			sub.mu.Unlock()

			s.sendNotification(sub, update)
			if update.Kind != wire.EventData {
				return
			}
		}
	}
}

func (s *Server) handleMonitorCancel(req *wire.Request) *wire.Response {
	var payload wire.MonitorCancelPayload
	ok, err := wire.DecodePayload(req.Payload, &payload)
	if err != nil || !ok {
		return &wire.Response{Status: wire.StatusNoSuchMonitor}
	}

	s.subsMu.Lock()
	sub, found := s.subs[payload.SubscriptionID]
	delete(s.subs, payload.SubscriptionID)
	s.subsMu.Unlock()

	if !found {
		return &wire.Response{Status: wire.StatusNoSuchMonitor}
	}

	sub.pv.detach(sub.id)
	sub.stopSender()
	return &wire.Response{Status: wire.StatusSuccess}
}

// sendNotification encodes and sends one monitor event.
func (s *Server) sendNotification(sub *subscription, update pvUpdate) {
	notif := &wire.Notification{
		SubscriptionID: sub.id,
		Kind:           update.Kind,
		Reason:         update.Reason,
	}
	if update.Kind == wire.EventData {
		wv, err := wire.FromValue(update.Value)
		if err != nil {
			s.logError(sub.conn, fmt.Errorf("encode value for sub %d: %w", sub.id, err))
			return
		}
		notif.Value = wv
	}

	encoded, err := wire.EncodeNotification(notif)
	if err != nil {
		s.logError(sub.conn, fmt.Errorf("encode notification: %w", err))
		return
	}
	if err := sub.conn.Send(encoded); err != nil {
		s.logError(sub.conn, fmt.Errorf("send notification: %w", err))
		return
	}

	s.logNotification(sub, notif)
}

// handleDisconnect detaches every subscription held by the connection.
func (s *Server) handleDisconnect(conn *transport.ServerConn) {
	s.subsMu.Lock()
	var orphaned []*subscription
	for id, sub := range s.subs {
		if sub.conn == conn {
			orphaned = append(orphaned, sub)
			delete(s.subs, id)
		}
	}
	s.subsMu.Unlock()

	for _, sub := range orphaned {
		sub.pv.detach(sub.id)
		sub.stopSender()
	}
}

// errorResponse maps a PV-layer error onto a wire status.
func errorResponse(err error) *wire.Response {
	resp := &wire.Response{Status: statusFor(err)}
	if resp.Status == wire.StatusRemoteError {
		resp.Payload = &wire.ErrorPayload{Message: err.Error()}
	}
	return resp
}

// statusFor translates PV-layer errors to wire status codes.
func statusFor(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusSuccess
	case errors.Is(err, ErrReadOnly):
		return wire.StatusReadOnly
	case errors.Is(err, ErrNotOpen):
		return wire.StatusNotOpen
	case errors.Is(err, pvdata.ErrNoSuchField):
		return wire.StatusNoSuchField
	case errors.Is(err, pvdata.ErrTypeMismatch):
		return wire.StatusTypeMismatch
	case errors.Is(err, pvdata.ErrNotAnArray):
		return wire.StatusNotAnArray
	case errors.Is(err, pvdata.ErrInvalidValue), errors.Is(err, ErrEmptyArray):
		return wire.StatusInvalidValue
	default:
		return wire.StatusRemoteError
	}
}

// valueResponse wraps a value tree in a success response.
func valueResponse(value pvdata.Value) *wire.Response {
	wv, err := wire.FromValue(value)
	if err != nil {
		return errorResponse(err)
	}
	return &wire.Response{
		Status:  wire.StatusSuccess,
		Payload: &wire.ValuePayload{Value: wv},
	}
}

func (s *Server) logRequest(conn *transport.ServerConn, req *wire.Request) {
	if s.logger == nil {
		return
	}
	op := req.Operation
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: conn.ConnID(),
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleServer,
		RemoteAddr:   conn.RemoteAddr().String(),
		PV:           req.PV,
		Message: &log.MessageEvent{
			Type:      log.MessageTypeRequest,
			MessageID: req.MessageID,
			Operation: &op,
			PV:        req.PV,
		},
	})
}

func (s *Server) logResponse(conn *transport.ServerConn, req *wire.Request, resp *wire.Response, took time.Duration) {
	if s.logger == nil {
		return
	}
	status := resp.Status
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: conn.ConnID(),
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleServer,
		RemoteAddr:   conn.RemoteAddr().String(),
		PV:           req.PV,
		Message: &log.MessageEvent{
			Type:           log.MessageTypeResponse,
			MessageID:      resp.MessageID,
			Status:         &status,
			ProcessingTime: &took,
		},
	})
}

func (s *Server) logNotification(sub *subscription, notif *wire.Notification) {
	if s.logger == nil {
		return
	}
	subID := notif.SubscriptionID
	kind := notif.Kind
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: sub.conn.ConnID(),
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleServer,
		RemoteAddr:   sub.conn.RemoteAddr().String(),
		PV:           sub.pvName,
		Message: &log.MessageEvent{
			Type:           log.MessageTypeNotification,
			SubscriptionID: &subID,
			EventKind:      &kind,
		},
	})
}

func (s *Server) logError(conn *transport.ServerConn, err error) {
	if s.logger == nil {
		return
	}
	event := log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerWire,
		Category:  log.CategoryError,
		LocalRole: log.RoleServer,
		Error:     &log.ErrorEventData{Message: err.Error()},
	}
	if conn != nil {
		event.ConnectionID = conn.ConnID()
		event.RemoteAddr = conn.RemoteAddr().String()
	}
	s.logger.Log(event)
}
