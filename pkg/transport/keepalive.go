package transport

import (
	"context"
	"sync"
	"time"
)

// Liveness defaults. With these a dead peer is declared within
// PingInterval*MaxMissedPongs + PongTimeout (95s).
const (
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 5 * time.Second
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig tunes liveness probing. Zero fields take defaults.
type KeepAliveConfig struct {
	// PingInterval is the cadence of outgoing pings.
	PingInterval time.Duration

	// PongTimeout is how long a ping may stay unanswered before it
	// counts as missed.
	PongTimeout time.Duration

	// MaxMissedPongs is the number of consecutive misses that marks
	// the connection dead.
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default probing configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the worst-case time between a peer dying silently
// and onTimeout firing under this configuration.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// KeepAlive probes one connection with sequence-numbered pings sent on
// the control channel. The peer echoes the sequence in a pong; a run
// of unanswered pings fires onTimeout exactly once.
type KeepAlive struct {
	cfg       KeepAliveConfig
	sendPing  func(seq uint32) error
	onTimeout func()

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	pongCh  chan uint32

	seq      uint32
	awaiting uint32 // sequence of the outstanding ping, 0 when answered
	sentAt   time.Time
	missed   int
}

// NewKeepAlive creates a prober for one connection. sendPing writes a
// ping control message; onTimeout is invoked when the miss budget is
// exhausted.
func NewKeepAlive(cfg KeepAliveConfig, sendPing func(seq uint32) error, onTimeout func()) *KeepAlive {
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.PongTimeout == 0 {
		cfg.PongTimeout = DefaultPongTimeout
	}
	if cfg.MaxMissedPongs == 0 {
		cfg.MaxMissedPongs = DefaultMaxMissedPongs
	}

	return &KeepAlive{
		cfg:       cfg,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		stopCh:    make(chan struct{}),
		pongCh:    make(chan uint32, 1),
	}
}

// Start launches the probe loop. Starting a running prober is a no-op.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	ka.mu.Unlock()

	go ka.loop(ctx)
}

// Stop halts probing. Safe to call on a stopped prober.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// IsRunning reports whether the probe loop is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// PongReceived feeds a pong control message into the prober. Called
// from the connection read loop.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongCh <- seq:
	default:
		// A pong is already queued; this one is stale.
	}
}

func (ka *KeepAlive) loop(ctx context.Context) {
	ticker := time.NewTicker(ka.cfg.PingInterval)
	defer ticker.Stop()

	ka.ping()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ka.stopCh:
			return
		case <-ticker.C:
			if dead := ka.tick(); dead {
				if ka.onTimeout != nil {
					ka.onTimeout()
				}
				return
			}
			ka.ping()
		case seq := <-ka.pongCh:
			ka.pong(seq)
		}
	}
}

// ping sends the next probe and records it as outstanding.
func (ka *KeepAlive) ping() {
	ka.mu.Lock()
	ka.seq++
	seq := ka.seq
	ka.awaiting = seq
	ka.sentAt = time.Now()
	ka.mu.Unlock()

	if err := ka.sendPing(seq); err != nil {
		// Leave the ping outstanding: a dead socket shows up as a
		// missed pong on the next tick.
		return
	}
}

// tick settles the outstanding ping, returning true once the miss
// budget is exhausted.
func (ka *KeepAlive) tick() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if ka.awaiting == 0 {
		return false
	}
	if time.Since(ka.sentAt) < ka.cfg.PongTimeout {
		return false
	}

	ka.awaiting = 0
	ka.missed++
	return ka.missed >= ka.cfg.MaxMissedPongs
}

// pong matches an echo against the outstanding ping. Stale sequences
// are ignored.
func (ka *KeepAlive) pong(seq uint32) {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if ka.awaiting != 0 && seq == ka.awaiting {
		ka.awaiting = 0
		ka.missed = 0
	}
}
