package connection

import (
	"math/rand"
	"sync"
	"time"
)

// Reconnection backoff parameters. The base delay doubles per attempt
// from InitialBackoff up to MaxBackoff, with up to JitterFactor of
// random jitter added so a restarted server is not hit by every client
// at once.
const (
	InitialBackoff    = 1 * time.Second
	MaxBackoff        = 60 * time.Second
	BackoffMultiplier = 2.0
	JitterFactor      = 0.25
)

// Backoff produces the delay sequence for reconnection attempts.
// Safe for concurrent use.
type Backoff struct {
	mu       sync.Mutex
	base     time.Duration
	attempts int
	rng      *rand.Rand
}

// NewBackoff starts a fresh sequence at InitialBackoff.
func NewBackoff() *Backoff {
	return &Backoff{
		base: InitialBackoff,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the jittered delay for the next attempt and advances
// the sequence.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.jittered(b.base)
	b.attempts++

	b.base = time.Duration(float64(b.base) * BackoffMultiplier)
	if b.base > MaxBackoff {
		b.base = MaxBackoff
	}
	return delay
}

// Reset restarts the sequence. Called after a successful connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.base = InitialBackoff
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the base delay for the next attempt, without jitter.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base
}

func (b *Backoff) jittered(d time.Duration) time.Duration {
	return d + time.Duration(float64(d)*JitterFactor*b.rng.Float64())
}
