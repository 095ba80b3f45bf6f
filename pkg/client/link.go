package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pvaccess-protocol/pva-go/pkg/connection"
	"github.com/pvaccess-protocol/pva-go/pkg/log"
	"github.com/pvaccess-protocol/pva-go/pkg/transport"
	"github.com/pvaccess-protocol/pva-go/pkg/wire"
)

// ErrDisconnected indicates the serving connection was lost before the
// call completed.
var ErrDisconnected = errors.New("disconnected")

// link is one client-to-server connection: lazy dial, request/response
// correlation, notification dispatch, and monitor resubscription after
// a reconnect.
type link struct {
	address string
	tc      *transport.Client
	logger  log.Logger

	mgr *connection.Manager

	mu        sync.Mutex
	conn      *transport.ClientConn
	nextMsgID uint32
	pending   map[uint32]chan *wire.Response
	monitors  map[*Monitor]uint32
	bySub     map[uint32]*Monitor
	// orphans buffers notifications that arrive between the server
	// assigning a subscription ID and this side registering it.
	orphans map[uint32][]*wire.Notification

	closed atomic.Bool
}

func newLink(address string, tc *transport.Client, logger log.Logger) *link {
	l := &link{
		address:  address,
		tc:       tc,
		logger:   logger,
		pending:  make(map[uint32]chan *wire.Response),
		monitors: make(map[*Monitor]uint32),
		bySub:    make(map[uint32]*Monitor),
		orphans:  make(map[uint32][]*wire.Notification),
	}
	l.mgr = connection.NewManager(l.dial)
	l.mgr.OnConnected(l.handleConnected)
	l.mgr.OnDisconnected(l.handleDisconnected)
	l.mgr.StartReconnectLoop()
	return l
}

// dial establishes the TCP connection, arms the liveness prober, and
// starts the read loop.
func (l *link) dial(ctx context.Context) error {
	conn, err := l.tc.Connect(ctx, l.address)
	if err != nil {
		return err
	}

	// A silently dead server never errors the blocking read; the prober
	// closes the connection after the miss budget so the read loop
	// observes the loss and the manager redials.
	ka := transport.NewKeepAlive(l.tc.KeepAliveConfig(), conn.SendPing, func() {
		conn.Close()
	})

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	ka.Start(context.Background())
	go l.readLoop(conn, ka)
	return nil
}

// ensureConnected dials on first use. While the manager is redialing in
// the background, calls fail fast instead of piling up.
func (l *link) ensureConnected(timeout time.Duration) error {
	if l.closed.Load() {
		return ErrContextClosed
	}
	if l.mgr.IsConnected() {
		return nil
	}
	if l.mgr.State() == connection.StateReconnecting {
		return fmt.Errorf("%w: reconnecting to %s", ErrDisconnected, l.address)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := l.mgr.Connect(ctx)
	if err != nil && !errors.Is(err, connection.ErrAlreadyConnected) {
		return err
	}
	return nil
}

// request sends one request and waits for its response.
func (l *link) request(req *wire.Request, timeout time.Duration) (*wire.Response, error) {
	if err := l.ensureConnected(timeout); err != nil {
		return nil, err
	}

	l.mu.Lock()
	conn := l.conn
	if conn == nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDisconnected, l.address)
	}
	l.nextMsgID++
	for l.nextMsgID == wire.NotificationMessageID || l.nextMsgID == wire.ControlMessageID {
		l.nextMsgID++
	}
	req.MessageID = l.nextMsgID
	ch := make(chan *wire.Response, 1)
	l.pending[req.MessageID] = ch
	l.mu.Unlock()

	unregister := func() {
		l.mu.Lock()
		delete(l.pending, req.MessageID)
		l.mu.Unlock()
	}

	data, err := wire.EncodeRequest(req)
	if err != nil {
		unregister()
		return nil, err
	}
	if err := conn.Send(data); err != nil {
		unregister()
		return nil, fmt.Errorf("%w: %s", ErrDisconnected, l.address)
	}

	l.logMessage(log.DirectionOut, &log.MessageEvent{
		Type:      log.MessageTypeRequest,
		MessageID: req.MessageID,
		Operation: &req.Operation,
		PV:        req.PV,
	}, req.PV)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDisconnected, l.address)
		}
		return resp, nil
	case <-timer.C:
		unregister()
		return nil, fmt.Errorf("%w: %s %q", ErrTimeout, req.Operation, req.PV)
	}
}

// readLoop owns all reads on the connection, dispatching responses to
// waiting requests, notifications to monitors, and pongs to the
// liveness prober.
func (l *link) readLoop(conn *transport.ClientConn, ka *transport.KeepAlive) {
	for {
		frame, err := conn.Receive(0)
		if err != nil {
			ka.Stop()
			conn.Close()
			l.failPending()
			if !l.closed.Load() {
				l.mgr.NotifyConnectionLost()
			}
			return
		}

		msgType, err := wire.PeekMessageType(frame)
		if err != nil {
			continue
		}

		switch msgType {
		case wire.MessageTypeResponse:
			resp, err := wire.DecodeResponse(frame)
			if err != nil {
				continue
			}
			l.mu.Lock()
			ch := l.pending[resp.MessageID]
			delete(l.pending, resp.MessageID)
			l.mu.Unlock()
			if ch != nil {
				status := resp.Status
				l.logMessage(log.DirectionIn, &log.MessageEvent{
					Type:      log.MessageTypeResponse,
					MessageID: resp.MessageID,
					Status:    &status,
				}, "")
				ch <- resp
			}

		case wire.MessageTypeNotification:
			notif, err := wire.DecodeNotification(frame)
			if err != nil {
				continue
			}
			l.dispatchNotification(notif)

		case wire.MessageTypeControl:
			ctype, seq, err := transport.DecodeControlMessage(frame)
			if err != nil {
				continue
			}
			if ctype == transport.ControlPong {
				ka.PongReceived(seq)
			}
		}
	}
}

// dispatchNotification routes one monitor event. Events for a not yet
// registered subscription are buffered until subscribe registers it.
func (l *link) dispatchNotification(notif *wire.Notification) {
	l.mu.Lock()
	m, known := l.bySub[notif.SubscriptionID]
	if !known {
		l.orphans[notif.SubscriptionID] = append(l.orphans[notif.SubscriptionID], notif)
		l.mu.Unlock()
		return
	}
	if notif.Kind != wire.EventData {
		// Finished and error events terminate the subscription.
		delete(l.bySub, notif.SubscriptionID)
		delete(l.monitors, m)
	}
	// Deliver under the link lock: subscribe primes monitors while
	// holding it, so events can never overtake the priming snapshot.
	m.handleNotification(notif)
	l.mu.Unlock()

	subID := notif.SubscriptionID
	kind := notif.Kind
	l.logMessage(log.DirectionIn, &log.MessageEvent{
		Type:           log.MessageTypeNotification,
		SubscriptionID: &subID,
		EventKind:      &kind,
	}, m.name)
}

// subscribe issues a monitor request and wires the monitor into the
// notification dispatch.
func (l *link) subscribe(m *Monitor, timeout time.Duration) error {
	resp, err := l.request(&wire.Request{Operation: wire.OpMonitor, PV: m.name}, timeout)
	if err != nil {
		return err
	}
	if resp.Status.IsError() {
		return statusError(resp, m.name)
	}

	var payload wire.MonitorResponsePayload
	ok, err := wire.DecodePayload(resp.Payload, &payload)
	if err != nil || !ok {
		return fmt.Errorf("monitor response for %q: missing payload", m.name)
	}

	l.mu.Lock()
	l.monitors[m] = payload.SubscriptionID
	l.bySub[payload.SubscriptionID] = m
	buffered := l.orphans[payload.SubscriptionID]
	delete(l.orphans, payload.SubscriptionID)

	// Deliver the priming snapshot and any buffered events while
	// holding the lock; read-loop dispatch delivers under the same lock
	// and so stays ordered behind them.
	m.deliver(&EventError{Kind: EventConnected})
	if payload.Current != nil {
		if value, err := payload.Current.ToValue(); err == nil {
			m.deliverData(value)
		}
	}
	for _, notif := range buffered {
		if notif.Kind != wire.EventData {
			delete(l.bySub, payload.SubscriptionID)
			delete(l.monitors, m)
		}
		m.handleNotification(notif)
	}
	l.mu.Unlock()

	return nil
}

// adopt binds a monitor whose initial subscribe failed at the
// transport level. The link redials in the background and replays the
// subscription from handleConnected.
func (l *link) adopt(m *Monitor) {
	l.mu.Lock()
	if _, ok := l.monitors[m]; !ok {
		l.monitors[m] = 0
	}
	l.mu.Unlock()

	l.mgr.TriggerReconnect()
}

// unsubscribe cancels the monitor's subscription, if it has one.
func (l *link) unsubscribe(m *Monitor, timeout time.Duration) {
	l.mu.Lock()
	subID, ok := l.monitors[m]
	delete(l.monitors, m)
	delete(l.bySub, subID)
	l.mu.Unlock()

	if !ok || !l.mgr.IsConnected() {
		return
	}

	l.request(&wire.Request{
		Operation: wire.OpMonitorCancel,
		Payload:   &wire.MonitorCancelPayload{SubscriptionID: subID},
	}, timeout)
}

// handleConnected resubscribes monitors after a reconnect. On the
// initial connect there is nothing to replay.
func (l *link) handleConnected() {
	l.mu.Lock()
	replay := make([]*Monitor, 0, len(l.monitors))
	for m := range l.monitors {
		replay = append(replay, m)
	}
	l.bySub = make(map[uint32]*Monitor)
	l.orphans = make(map[uint32][]*wire.Notification)
	l.mu.Unlock()

	for _, m := range replay {
		if m.isStopped() {
			continue
		}
		if err := l.subscribe(m, 5*time.Second); err != nil {
			m.deliver(&EventError{Kind: EventDisconnected, Reason: err.Error()})
		}
	}
}

// handleDisconnected surfaces the loss to every attached monitor.
func (l *link) handleDisconnected() {
	l.mu.Lock()
	attached := make([]*Monitor, 0, len(l.monitors))
	for m := range l.monitors {
		attached = append(attached, m)
	}
	l.mu.Unlock()

	for _, m := range attached {
		m.deliver(&EventError{Kind: EventDisconnected, Reason: "connection lost"})
	}
}

// failPending wakes every in-flight request with a disconnect error.
func (l *link) failPending() {
	l.mu.Lock()
	for id, ch := range l.pending {
		close(ch)
		delete(l.pending, id)
	}
	l.mu.Unlock()
}

// close tears the link down for good.
func (l *link) close() {
	if l.closed.Swap(true) {
		return
	}
	l.mgr.Close()

	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	l.failPending()
}

func (l *link) logMessage(dir log.Direction, msg *log.MessageEvent, pv string) {
	if l.logger == nil {
		return
	}
	l.logger.Log(log.Event{
		Timestamp:  time.Now(),
		Direction:  dir,
		Layer:      log.LayerWire,
		Category:   log.CategoryMessage,
		LocalRole:  log.RoleClient,
		RemoteAddr: l.address,
		PV:         pv,
		Message:    msg,
	})
}
