package remote

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/biszaal/expenzez-sub007/internal/infra/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════
// Circuit Breaker
// ═══════════════════════════════════════════════════════════════════════════
//
//	closed  → FailureThreshold consecutive outages → open
//	open    → ResetTimeout elapsed                 → probing
//	probing → ProbeSuccesses successes → closed, any outage → open
//
// While open, calls fail fast with ErrCircuitOpen so an unreachable service
// costs nothing beyond the local write.

// BreakerState is the breaker position.
type BreakerState int

const (
	BreakerClosed  BreakerState = iota // calls pass through
	BreakerOpen                        // calls rejected without touching the network
	BreakerProbing                     // trial calls allowed
)

// String returns the state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	FailureThreshold int           // outages that trip the breaker
	ResetTimeout     time.Duration // time open before probing
	ProbeSuccesses   int           // successes in probing that close it again
}

// DefaultBreakerConfig returns production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		ProbeSuccesses:   1,
	}
}

// Breaker guards the remote service. Safe for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	config    BreakerConfig
	state     BreakerState
	failures  int
	successes int
	trippedAt time.Time
	trips     int
	now       func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.ProbeSuccesses <= 0 {
		cfg.ProbeSuccesses = def.ProbeSuccesses
	}
	return &Breaker{config: cfg, now: time.Now}
}

// Allow returns ErrCircuitOpen while calls must not be attempted.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advanceLocked()
	if b.state == BreakerOpen {
		retryIn := b.config.ResetTimeout - b.now().Sub(b.trippedAt)
		return fmt.Errorf("%w: retry in %s", ErrCircuitOpen, retryIn.Round(time.Second))
	}
	return nil
}

// Success records a call the service answered.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerProbing:
		b.successes++
		if b.successes >= b.config.ProbeSuccesses {
			b.setLocked(BreakerClosed)
		}
	case BreakerClosed:
		b.failures = 0
	}
}

// Failure records an outage. It may trip the breaker.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.tripLocked()
		}
	case BreakerProbing:
		b.tripLocked()
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	return b.state
}

// Trips returns how often the breaker opened.
func (b *Breaker) Trips() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(BreakerClosed)
}

func (b *Breaker) advanceLocked() {
	if b.state == BreakerOpen && b.now().Sub(b.trippedAt) >= b.config.ResetTimeout {
		b.setLocked(BreakerProbing)
	}
}

func (b *Breaker) tripLocked() {
	b.trippedAt = b.now()
	b.trips++
	b.setLocked(BreakerOpen)
}

func (b *Breaker) setLocked(s BreakerState) {
	b.state = s
	b.failures = 0
	b.successes = 0
	metrics.RemoteBreakerState.Set(float64(s))
}
