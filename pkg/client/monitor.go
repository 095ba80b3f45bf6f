package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
	"github.com/pvaccess-protocol/pva-go/pkg/wire"
)

// monitorEntry is one queued monitor event: a data snapshot or a
// connection/fault signal.
type monitorEntry struct {
	value *pvdata.Value
	event *EventError
}

// Monitor is a subscription to one PV. The serving link produces
// events into a FIFO queue; the application drains it with Pop. An
// optional callback fires once per empty-to-non-empty transition and
// is re-armed only after the consumer drains the queue.
//
// One goroutine should consume a Monitor. Values popped from the queue
// are immutable and safe to share.
type Monitor struct {
	name string
	link *link

	maskConnected    bool
	maskDisconnected bool
	callback         func()

	mu        sync.Mutex
	queue     []monitorEntry
	armed     bool
	connected bool
	stopped   bool
}

// Name returns the PV name this monitor subscribes to.
func (m *Monitor) Name() string {
	return m.name
}

// IsConnected reports the latest connect/disconnect signal from the
// serving link. False until the subscription first reaches a server.
func (m *Monitor) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Monitor) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Pop removes the oldest queue entry. It returns (value, nil) for a
// data entry, (nil, nil) for an empty queue, and (nil, *EventError)
// for a connection or fault entry. Observing an empty queue re-arms
// the event callback. After Stop every call fails with ClientError.
func (m *Monitor) Pop() (*pvdata.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, m.stoppedError()
	}
	if len(m.queue) == 0 {
		m.armed = true
		return nil, nil
	}

	entry := m.queue[0]
	m.queue = m.queue[1:]
	if entry.event != nil {
		return nil, entry.event
	}
	return entry.value, nil
}

// TryGetUpdate returns the next data value, swallowing connection and
// fault entries. (nil, nil) means no data is queued.
func (m *Monitor) TryGetUpdate() (*pvdata.Value, error) {
	for {
		value, err := m.Pop()
		if err != nil {
			var evt *EventError
			if errors.As(err, &evt) {
				continue
			}
			return nil, err
		}
		return value, nil
	}
}

// GetUpdate blocks until a data value arrives or the timeout elapses.
func (m *Monitor) GetUpdate(timeout time.Duration) (*pvdata.Value, error) {
	deadline := time.Now().Add(timeout)
	for {
		value, err := m.TryGetUpdate()
		if err != nil {
			return nil, err
		}
		if value != nil {
			return value, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %q", ErrTimeout, m.name)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// HasUpdate reports whether a data value is queued.
func (m *Monitor) HasUpdate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return false
	}
	for _, entry := range m.queue {
		if entry.event == nil {
			return true
		}
	}
	return false
}

// Stop cancels the subscription. No further events are queued and all
// subsequent reads fail with ClientError until Start re-arms the
// monitor. Stopping twice is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.queue = nil
	m.mu.Unlock()

	m.link.unsubscribe(m, 5*time.Second)
}

// Start (re)issues the subscription. Starting a monitor that is
// already active is a no-op. After Stop the monitor subscribes from
// scratch: the queue starts empty and a fresh Connected entry plus the
// current value are queued when the PV is reachable and open. A server
// rejection restops the monitor and returns the error; a transport
// failure leaves it attached for replay when the link reconnects.
func (m *Monitor) Start() error {
	m.mu.Lock()
	if !m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = false
	m.queue = nil
	m.armed = true
	m.connected = false
	m.mu.Unlock()

	err := m.link.subscribe(m, 5*time.Second)
	if err == nil {
		return nil
	}
	if isRemoteRejection(err) {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()
		return err
	}

	m.link.adopt(m)
	return nil
}

// IsRunning reports whether the subscription is active, i.e. the
// monitor has been started (or executed) and not stopped since.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.stopped
}

func (m *Monitor) stoppedError() error {
	return ClientError(fmt.Sprintf("%q doesn't have an active monitor", m.name))
}

// handleNotification translates a wire event into queue entries.
func (m *Monitor) handleNotification(notif *wire.Notification) {
	switch notif.Kind {
	case wire.EventData:
		if notif.Value == nil {
			return
		}
		value, err := notif.Value.ToValue()
		if err != nil {
			m.deliver(&EventError{Kind: EventRemoteError, Reason: err.Error()})
			return
		}
		m.deliverData(value)
	case wire.EventFinished:
		m.deliver(&EventError{Kind: EventFinished, Reason: notif.Reason})
	case wire.EventError:
		m.deliver(&EventError{Kind: EventRemoteError, Reason: notif.Reason})
	}
}

// deliverData enqueues a data snapshot.
func (m *Monitor) deliverData(value pvdata.Value) {
	m.enqueue(monitorEntry{value: &value})
}

// deliver enqueues a non-data event. Connect and disconnect signals
// update IsConnected even when masked out of the queue.
func (m *Monitor) deliver(evt *EventError) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}

	switch evt.Kind {
	case EventConnected:
		m.connected = true
		if m.maskConnected {
			m.mu.Unlock()
			return
		}
	case EventDisconnected:
		m.connected = false
		if m.maskDisconnected {
			m.mu.Unlock()
			return
		}
	}
	m.mu.Unlock()

	m.enqueue(monitorEntry{event: evt})
}

// enqueue appends one entry and fires the callback on the
// empty-to-non-empty edge when armed.
func (m *Monitor) enqueue(entry monitorEntry) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}

	wasEmpty := len(m.queue) == 0
	m.queue = append(m.queue, entry)

	fire := wasEmpty && m.armed
	if fire {
		m.armed = false
	}
	cb := m.callback
	m.mu.Unlock()

	if fire && cb != nil {
		cb()
	}
}

// MonitorBuilder configures a subscription before it is issued.
type MonitorBuilder struct {
	ctx  *Context
	name string

	maskConnected    bool
	maskDisconnected bool
	callback         func()
}

// MaskConnected suppresses Connected entries from the queue. The
// signal still updates IsConnected.
func (b *MonitorBuilder) MaskConnected(mask bool) *MonitorBuilder {
	b.maskConnected = mask
	return b
}

// MaskDisconnected suppresses Disconnected entries from the queue. The
// signal still updates IsConnected.
func (b *MonitorBuilder) MaskDisconnected(mask bool) *MonitorBuilder {
	b.maskDisconnected = mask
	return b
}

// ConnectionEvents chooses whether Connected signals are materialized
// as queue entries. Inverted alias of MaskConnected.
func (b *MonitorBuilder) ConnectionEvents(enable bool) *MonitorBuilder {
	b.maskConnected = !enable
	return b
}

// DisconnectionEvents chooses whether Disconnected signals are
// materialized as queue entries. Inverted alias of MaskDisconnected.
func (b *MonitorBuilder) DisconnectionEvents(enable bool) *MonitorBuilder {
	b.maskDisconnected = !enable
	return b
}

// Event registers a callback fired once per empty-to-non-empty queue
// transition. The callback runs on the connection's read goroutine: it
// must not block and must not issue operations on the same Context.
// Signal a consumer goroutine instead.
func (b *MonitorBuilder) Event(callback func()) *MonitorBuilder {
	b.callback = callback
	return b
}

// Exec issues the subscription. The returned monitor is active: a
// Connected entry and the current value are queued when the PV is
// reachable and open. An unreachable server leaves the monitor
// disconnected; the subscription is replayed when the link reconnects.
func (b *MonitorBuilder) Exec() (*Monitor, error) {
	return b.ctx.execMonitor(b)
}
