package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/biszaal/expenzez-sub007/internal/app/localstore"
	"github.com/biszaal/expenzez-sub007/internal/domain"
	"github.com/biszaal/expenzez-sub007/internal/infra/metrics"
)

// DefaultTimeout bounds every remote call.
const DefaultTimeout = 3 * time.Second

// HydrateOutcome describes how a hydrate attempt ended.
type HydrateOutcome string

const (
	HydrateRemote   HydrateOutcome = "remote"    // remote record overwrote local state
	HydrateNotFound HydrateOutcome = "not_found" // no remote record; local cache kept
	HydrateFallback HydrateOutcome = "fallback"  // remote failed or not configured; local cache kept
	HydratePending  HydrateOutcome = "pending"   // unpushed local changes; local cache kept and pushed
	HydrateSkipped  HydrateOutcome = "skipped"   // session already hydrated or reset mid-flight
)

// Config configures a Coordinator.
type Config struct {
	Timeout time.Duration
	Retry   RetryConfig
}

// DefaultConfig returns production sync defaults.
func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout, Retry: DefaultRetryConfig()}
}

// Guard runs fn exclusively with every other writer of the local book.
type Guard func(fn func() error) error

func unguarded(fn func() error) error { return fn() }

// Coordinator runs the hydrate-then-push protocol. Remote failures are never
// surfaced to callers; the local cache is always usable on its own.
//
// Local changes the remote has not acknowledged carry a durable pending mark.
// While the mark exists hydrate never overwrites local state; it pushes
// instead, so progress made offline survives a restart.
type Coordinator struct {
	store   *localstore.Store
	remote  domain.RemoteProgression // nil = local-only
	queue   *PushQueue
	group   singleflight.Group
	guard   Guard
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewCoordinator creates a coordinator. remote may be nil for local-only use.
func NewCoordinator(store *localstore.Store, remote domain.RemoteProgression, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		store:   store,
		remote:  remote,
		guard:   unguarded,
		timeout: cfg.Timeout,
		logger:  logger.With("component", "syncer"),
		now:     time.Now,
	}
	c.queue = NewPushQueue(cfg.Retry, c.push, logger)
	return c
}

// SetGuard installs the lock shared with the ledger. Applying a remote
// record runs under it so it never interleaves with an award.
func (c *Coordinator) SetGuard(g Guard) {
	if g == nil {
		g = unguarded
	}
	c.guard = g
}

// Queue exposes the push queue for its worker loop and stats.
func (c *Coordinator) Queue() *PushQueue {
	return c.queue
}

// Remote reports whether a remote endpoint is configured.
func (c *Coordinator) Remote() bool {
	return c.remote != nil
}

// Hydrate pulls the remote record once per session. Concurrent callers for
// the same user share one remote call. On success the remote record replaces
// local state unless local changes are still unpushed; on not-found or any
// failure the local cache stays as is. The session latch is set after any
// completed attempt.
func (c *Coordinator) Hydrate(ctx context.Context, sess *Session) HydrateOutcome {
	if sess == nil || sess.UserID == "" {
		return HydrateSkipped
	}
	if sess.Hydrated() {
		metrics.HydrateTotal.WithLabelValues(string(HydrateSkipped)).Inc()
		return HydrateSkipped
	}

	epoch := sess.currentEpoch()
	v, _, _ := c.group.Do(sess.UserID, func() (any, error) {
		outcome := c.hydrate(ctx, sess, epoch)
		// Latch before the flight ends so no caller can start a second one.
		sess.latch(epoch)
		return outcome, nil
	})
	// Callers that joined another session's flight latch their own.
	sess.latch(epoch)

	outcome := v.(HydrateOutcome)
	metrics.HydrateTotal.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (c *Coordinator) hydrate(ctx context.Context, sess *Session, epoch uint64) HydrateOutcome {
	if c.remote == nil {
		return HydrateFallback
	}
	userID := sess.UserID

	if c.unpushed(ctx, userID) {
		c.logger.Info("unpushed local changes, pushing instead of hydrating", "user", userID)
		c.schedule(userID)
		return HydratePending
	}

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rec, err := c.remote.Get(rctx, userID)
	switch {
	case errors.Is(err, domain.ErrProgressionNotFound):
		c.logger.Info("no remote progression, keeping local cache", "user", userID)
		return HydrateNotFound
	case err != nil:
		c.logger.Warn("remote hydrate failed, using local cache", "user", userID, "error", err)
		return HydrateFallback
	}

	outcome := HydrateRemote
	err = c.guard(func() error {
		switch {
		case sess.currentEpoch() != epoch:
			outcome = HydrateSkipped
			return nil
		case c.unpushed(ctx, userID):
			outcome = HydratePending
			c.schedule(userID)
			return nil
		}
		return c.store.ReplaceFromRemote(ctx, userID, rec)
	})
	if err != nil {
		c.logger.Warn("apply remote record failed", "user", userID, "error", err)
		return HydrateFallback
	}
	if outcome == HydrateRemote {
		c.logger.Info("hydrated from remote", "user", userID,
			"points", rec.Progression.TotalPoints, "achievements", len(rec.Achievements))
	}
	return outcome
}

// unpushed reports whether userID has a pending mark. A store that cannot
// answer is treated as pending so remote state never overwrites local data
// blindly.
func (c *Coordinator) unpushed(ctx context.Context, userID string) bool {
	_, ok, err := c.store.PendingMark(ctx, userID)
	if err != nil {
		c.logger.Warn("read pending mark failed", "user", userID, "error", err)
		return true
	}
	return ok
}

func (c *Coordinator) schedule(userID string) {
	if err := c.queue.Enqueue(userID); err != nil {
		c.logger.Warn("push not scheduled", "user", userID, "error", err)
	}
}

// Changed marks the user's local state as unpushed and schedules a
// background push. Mutations before hydration are not pushed: the remote
// record must be read first. Never waits on the network.
func (c *Coordinator) Changed(sess *Session) {
	if c.remote == nil || sess == nil || !sess.Hydrated() {
		return
	}
	if _, err := c.store.MarkPending(context.Background(), sess.UserID); err != nil {
		c.logger.Warn("persist pending mark failed", "user", sess.UserID, "error", err)
	}
	c.schedule(sess.UserID)
}

// Forget drops pending pushes for the session and resets its latch.
func (c *Coordinator) Forget(sess *Session) {
	if sess == nil {
		return
	}
	c.queue.Remove(sess.UserID)
	sess.Reset()
}

func (c *Coordinator) push(ctx context.Context, userID string) error {
	if c.remote == nil {
		return nil
	}
	mark, marked, err := c.store.PendingMark(ctx, userID)
	if err != nil {
		return err
	}
	rec, err := c.store.Snapshot(ctx, userID, c.now())
	if err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.remote.Put(rctx, userID, rec); err != nil {
		return err
	}
	if marked {
		if err := c.store.ClearPending(ctx, userID, mark); err != nil {
			c.logger.Warn("clear pending mark failed", "user", userID, "error", err)
		}
	}
	return nil
}
