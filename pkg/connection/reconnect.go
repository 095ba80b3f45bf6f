package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// reconnectDialTimeout bounds one dial attempt inside the reconnect loop.
const reconnectDialTimeout = 30 * time.Second

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// State is the lifecycle state of a managed connection.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc dials and establishes one connection attempt.
type ConnectFunc func(ctx context.Context) error

// Manager drives the connect/reconnect lifecycle around a ConnectFunc.
// It owns the state machine and the backoff sequence; the caller owns
// the actual socket and reports loss via NotifyConnectionLost.
type Manager struct {
	mu sync.RWMutex

	state         State
	backoff       *Backoff
	connectFn     ConnectFunc
	autoReconnect bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// reconnectCh has capacity 1. Multiple loss notifications while an
	// attempt is pending collapse into one.
	reconnectCh chan struct{}

	onStateChange  func(oldState, newState State)
	onConnected    func()
	onDisconnected func()
	onReconnecting func(attempt int, delay time.Duration)
}

// NewManager creates a manager with auto-reconnect enabled.
func NewManager(connectFn ConnectFunc) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		state:         StateDisconnected,
		backoff:       NewBackoff(),
		connectFn:     connectFn,
		autoReconnect: true,
		ctx:           ctx,
		cancel:        cancel,
		reconnectCh:   make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the connection is currently up.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// SetAutoReconnect enables or disables background redial after loss.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// Connect runs one foreground connection attempt.
func (m *Manager) Connect(ctx context.Context) error {
	switch m.State() {
	case StateConnected:
		return ErrAlreadyConnected
	case StateClosed:
		return ErrConnectionClosed
	}

	m.transition(StateConnecting)

	if err := m.connectFn(ctx); err != nil {
		m.transition(StateDisconnected)
		return err
	}

	m.backoff.Reset()
	m.transition(StateConnected)
	if m.onConnected != nil {
		m.onConnected()
	}
	return nil
}

// Disconnect drops an established connection. With auto-reconnect
// enabled, background redial starts immediately.
func (m *Manager) Disconnect() {
	m.connectionLost()
}

// NotifyConnectionLost reports that the established connection died
// (read loop error, missed pongs). With auto-reconnect enabled,
// background redial starts immediately.
func (m *Manager) NotifyConnectionLost() {
	m.connectionLost()
}

func (m *Manager) connectionLost() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	old := m.state
	redial := m.autoReconnect
	if redial {
		m.state = StateReconnecting
	} else {
		m.state = StateDisconnected
	}
	next := m.state
	m.mu.Unlock()

	if m.onStateChange != nil {
		m.onStateChange(old, next)
	}
	if m.onDisconnected != nil {
		m.onDisconnected()
	}
	if redial {
		m.wakeReconnect()
	}
}

// TriggerReconnect starts background redial from a disconnected state,
// for callers that never had an established connection to lose. No-op
// in any other state or with auto-reconnect disabled.
func (m *Manager) TriggerReconnect() {
	m.mu.Lock()
	if m.state != StateDisconnected || !m.autoReconnect {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateReconnecting
	m.mu.Unlock()

	if m.onStateChange != nil {
		m.onStateChange(old, StateReconnecting)
	}
	m.wakeReconnect()
}

// StartReconnectLoop starts the background redial goroutine. Call once;
// without it loss notifications queue up but nothing redials.
func (m *Manager) StartReconnectLoop() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-m.reconnectCh:
				m.redial()
			}
		}
	}()
}

// Close shuts the manager down and waits for the redial goroutine.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateClosed
	m.mu.Unlock()

	if m.onStateChange != nil {
		m.onStateChange(old, StateClosed)
	}
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) wakeReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
	}
}

// redial retries the ConnectFunc with backoff until it succeeds or the
// manager is closed.
func (m *Manager) redial() {
	for {
		switch m.State() {
		case StateClosed, StateConnected:
			return
		}

		delay := m.backoff.Next()
		if m.onReconnecting != nil {
			m.onReconnecting(m.backoff.Attempts(), delay)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		switch m.State() {
		case StateClosed, StateConnected:
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, reconnectDialTimeout)
		err := m.connectFn(ctx)
		cancel()
		if err != nil {
			continue
		}

		m.mu.Lock()
		old := m.state
		m.state = StateConnected
		m.backoff.Reset()
		m.mu.Unlock()

		if m.onStateChange != nil {
			m.onStateChange(old, StateConnected)
		}
		if m.onConnected != nil {
			m.onConnected()
		}
		return
	}
}

// transition moves to next and fires the state-change callback.
func (m *Manager) transition(next State) {
	m.mu.Lock()
	old := m.state
	m.state = next
	m.mu.Unlock()

	if m.onStateChange != nil && old != next {
		m.onStateChange(old, next)
	}
}

// OnStateChange registers a callback for every state transition.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected registers a callback fired after each successful connect.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnDisconnected registers a callback fired when the connection drops.
func (m *Manager) OnDisconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = fn
}

// OnReconnecting registers a callback fired before each redial wait.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}
