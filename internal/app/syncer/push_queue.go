package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/biszaal/expenzez-sub007/internal/domain"
	"github.com/biszaal/expenzez-sub007/internal/infra/metrics"
)

// ─── Push Retry Queue ───────────────────────────────────────────────────────
// Pending pushes are coalesced per user: the worker always sends the latest
// local snapshot, so ten mutations while offline cost one successful push.
// Failures back off exponentially; a fresh mutation makes the user due again
// immediately.

// RetryConfig configures the push queue behavior.
type RetryConfig struct {
	MaxRetries int           // Attempts before a push is abandoned until the next mutation
	BaseDelay  time.Duration // Initial backoff delay (doubles each retry)
	MaxDelay   time.Duration // Cap on backoff delay
	MaxPending int           // Maximum users waiting for a push
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
		MaxPending: 1024,
	}
}

// Pusher sends the current local snapshot of userID to the remote.
type Pusher func(ctx context.Context, userID string) error

type pushEntry struct {
	attempt   int
	nextRetry time.Time
	gen       uint64 // bumped by every Enqueue
	lastError string
}

// PushQueue is a bounded, observable queue of users with unpushed changes.
type PushQueue struct {
	mu      sync.Mutex
	config  RetryConfig
	push    Pusher
	logger  *slog.Logger
	pending map[string]*pushEntry
	signal  chan struct{}
	now     func() time.Time

	// Stats
	totalPushed    int64
	totalFailed    int64
	totalExhausted int64
	totalDropped   int64
	lastError      string
}

// NewPushQueue creates a queue that delivers through push.
func NewPushQueue(cfg RetryConfig, push Pusher, logger *slog.Logger) *PushQueue {
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultRetryConfig().MaxPending
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PushQueue{
		config:  cfg,
		push:    push,
		logger:  logger.With("component", "push-queue"),
		pending: make(map[string]*pushEntry),
		signal:  make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Enqueue marks userID as having unpushed changes and wakes the worker.
// A user already waiting on backoff becomes due immediately.
// Never blocks; returns domain.ErrPushQueueFull when the bound is hit.
func (q *PushQueue) Enqueue(userID string) error {
	q.mu.Lock()
	e, ok := q.pending[userID]
	if !ok {
		if len(q.pending) >= q.config.MaxPending {
			q.totalDropped++
			q.mu.Unlock()
			metrics.PushTotal.WithLabelValues("dropped").Inc()
			return domain.ErrPushQueueFull
		}
		e = &pushEntry{}
		q.pending[userID] = e
	}
	e.gen++
	e.attempt = 0
	e.nextRetry = time.Time{}
	n := len(q.pending)
	q.mu.Unlock()

	metrics.PushPending.Set(float64(n))
	q.wake()
	return nil
}

// Remove drops any pending push for userID.
func (q *PushQueue) Remove(userID string) {
	q.mu.Lock()
	delete(q.pending, userID)
	n := len(q.pending)
	q.mu.Unlock()
	metrics.PushPending.Set(float64(n))
}

// Run delivers pending pushes until ctx is cancelled.
func (q *PushQueue) Run(ctx context.Context) {
	q.logger.Info("push worker started")
	defer q.logger.Info("push worker stopped")

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		q.Flush(ctx)

		wait, ok := q.NextRetry()
		if !ok {
			wait = time.Hour
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-q.signal:
		case <-timer.C:
		}
	}
}

// Flush pushes every user whose retry time has passed and returns how many
// pushes succeeded.
func (q *PushQueue) Flush(ctx context.Context) int {
	type due struct {
		userID string
		gen    uint64
	}

	q.mu.Lock()
	now := q.now()
	var ready []due
	for uid, e := range q.pending {
		if !now.Before(e.nextRetry) {
			ready = append(ready, due{uid, e.gen})
		}
	}
	q.mu.Unlock()

	ok := 0
	for _, d := range ready {
		if ctx.Err() != nil {
			break
		}
		err := q.push(ctx, d.userID)
		q.complete(d.userID, d.gen, err)
		if err == nil {
			ok++
		}
	}
	return ok
}

func (q *PushQueue) complete(userID string, gen uint64, err error) {
	q.mu.Lock()
	defer func() {
		n := len(q.pending)
		q.mu.Unlock()
		metrics.PushPending.Set(float64(n))
	}()

	e, ok := q.pending[userID]
	if !ok {
		return // removed while in flight (logout)
	}

	if err == nil {
		q.totalPushed++
		metrics.PushTotal.WithLabelValues("ok").Inc()
		if e.gen == gen {
			delete(q.pending, userID)
		}
		return
	}

	q.totalFailed++
	q.lastError = err.Error()
	e.lastError = err.Error()
	metrics.PushTotal.WithLabelValues("error").Inc()

	if e.gen != gen {
		return // a newer mutation already made it due again
	}

	e.attempt++
	if e.attempt > q.config.MaxRetries {
		q.totalExhausted++
		delete(q.pending, userID)
		q.logger.Warn("push abandoned until next change", "user", userID, "attempts", e.attempt, "error", err)
		return
	}

	delay := backoff(q.config, e.attempt)
	e.nextRetry = q.now().Add(delay)
	q.logger.Debug("push failed, retrying", "user", userID, "attempt", e.attempt, "delay", delay, "error", err)
}

// NextRetry returns how long until the earliest pending push is due.
// ok is false when nothing is pending.
func (q *PushQueue) NextRetry() (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return 0, false
	}
	now := q.now()
	var earliest time.Time
	for _, e := range q.pending {
		if earliest.IsZero() || e.nextRetry.Before(earliest) {
			earliest = e.nextRetry
		}
	}
	wait := earliest.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

func (q *PushQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of users pending push.
func (q *PushQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// PushStats holds push queue statistics.
type PushStats struct {
	Pending        int    `json:"pending"`
	TotalPushed    int64  `json:"total_pushed"`
	TotalFailed    int64  `json:"total_failed"`
	TotalExhausted int64  `json:"total_exhausted"` // Exceeded MaxRetries
	TotalDropped   int64  `json:"total_dropped"`   // Rejected by MaxPending
	LastError      string `json:"last_error,omitempty"`
}

// Stats returns current push queue statistics.
func (q *PushQueue) Stats() PushStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return PushStats{
		Pending:        len(q.pending),
		TotalPushed:    q.totalPushed,
		TotalFailed:    q.totalFailed,
		TotalExhausted: q.totalExhausted,
		TotalDropped:   q.totalDropped,
		LastError:      q.lastError,
	}
}

// backoff returns baseDelay * 2^(attempt-1), capped at MaxDelay.
func backoff(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
			break
		}
	}
	return delay
}
