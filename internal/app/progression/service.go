// Package progression is the exposed face of the rewards engine. It resolves
// the signed-in user, hydrates once per session, routes awards through the
// ledger and achievement evaluation through the rule engine, and absorbs every
// internal failure into a safe default so the caller never sees a
// progression fault.
package progression

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/biszaal/expenzez-sub007/internal/app/engagement"
	"github.com/biszaal/expenzez-sub007/internal/app/ledger"
	"github.com/biszaal/expenzez-sub007/internal/app/localstore"
	"github.com/biszaal/expenzez-sub007/internal/app/syncer"
	"github.com/biszaal/expenzez-sub007/internal/domain"
	"github.com/biszaal/expenzez-sub007/internal/infra/metrics"
)

// unavailableMessage is shown when an award could not be recorded.
const unavailableMessage = "Progress is temporarily unavailable"

// Options tunes a Service.
type Options struct {
	// Strict surfaces catalog errors (unknown action ids) instead of
	// absorbing them. Enable outside production.
	Strict bool
	Logger *slog.Logger
	Now    func() time.Time
	Rules  *engagement.RuleEngine
}

// EvaluationResult is the outcome of one achievement pass.
type EvaluationResult struct {
	NewlyEarned []domain.Achievement `json:"newly_earned"`
	Award       domain.AwardResult   `json:"award"`
}

// Service wires identity, ledger, store, event source and sync together.
type Service struct {
	identity domain.Identity
	ledger   *ledger.Ledger
	store    *localstore.Store
	txs      domain.TransactionSource
	sync     *syncer.Coordinator
	rules    *engagement.RuleEngine
	strict   bool
	logger   *slog.Logger
	now      func() time.Time

	// opMu is held shared by every operation and exclusively by Logout,
	// so a logout waits for in-flight awards and hydrates.
	opMu sync.RWMutex

	sessMu  sync.Mutex
	session *syncer.Session

	evalMu sync.Mutex // one achievement pass at a time
}

// New creates the facade and installs the ledger's change hook.
func New(identity domain.Identity, store *localstore.Store, l *ledger.Ledger, txs domain.TransactionSource, sc *syncer.Coordinator, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rules == nil {
		opts.Rules = engagement.DefaultRuleEngine()
	}
	s := &Service{
		identity: identity,
		ledger:   l,
		store:    store,
		txs:      txs,
		sync:     sc,
		rules:    opts.Rules,
		strict:   opts.Strict,
		logger:   opts.Logger.With("component", "progression"),
		now:      opts.Now,
	}
	l.SetChangeHook(s.changed)
	sc.SetGuard(l.Exclusive)
	return s
}

// ─── Session ────────────────────────────────────────────────────────────────

// StartSession hydrates the signed-in user's state from the remote, credits
// any achievements the current activity already satisfies and returns the
// resulting progress.
func (s *Service) StartSession(ctx context.Context) domain.Progress {
	s.opMu.RLock()
	defer s.opMu.RUnlock()

	uid, ok := s.begin(ctx)
	if !ok {
		return zeroProgress()
	}
	s.evaluate(ctx, uid)
	return s.progress(ctx, uid)
}

// Logout drops pending pushes, clears the local cache and resets the
// hydrate latch. It is synchronous and waits for operations in flight.
func (s *Service) Logout(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.sessMu.Lock()
	sess := s.session
	s.session = nil
	s.sessMu.Unlock()

	uid := ""
	if sess != nil {
		uid = sess.UserID
		s.sync.Forget(sess)
	} else if id, ok := s.identity.UserID(); ok {
		uid = id
	}
	if uid == "" {
		return nil
	}
	err := s.ledger.Exclusive(func() error { return s.store.Clear(ctx, uid) })
	if err != nil {
		s.logger.Error("clear local progression failed", "user", uid, "error", err)
		return err
	}
	s.logger.Info("logged out", "user", uid)
	return nil
}

// Stats returns queue statistics of the background push.
func (s *Service) Stats() syncer.PushStats {
	return s.sync.Queue().Stats()
}

// ─── Queries ────────────────────────────────────────────────────────────────

// GetCurrentProgress returns level, points and achievement count.
func (s *Service) GetCurrentProgress(ctx context.Context) domain.Progress {
	s.opMu.RLock()
	defer s.opMu.RUnlock()

	uid, ok := s.begin(ctx)
	if !ok {
		return zeroProgress()
	}
	return s.progress(ctx, uid)
}

// ListAchievements returns earned achievements in earn order.
func (s *Service) ListAchievements(ctx context.Context) []domain.Achievement {
	s.opMu.RLock()
	defer s.opMu.RUnlock()

	uid, ok := s.begin(ctx)
	if !ok {
		return nil
	}
	achs, err := s.store.LoadAchievements(ctx, uid)
	if err != nil {
		s.logger.Error("load achievements failed", "user", uid, "error", err)
		return nil
	}
	return achs
}

// CanEarn reports whether actionID would award points right now.
func (s *Service) CanEarn(ctx context.Context, actionID string) (bool, error) {
	s.opMu.RLock()
	defer s.opMu.RUnlock()

	uid, ok := s.begin(ctx)
	if !ok {
		return false, nil
	}
	can, err := s.ledger.CanEarn(ctx, uid, actionID, s.now())
	if err != nil {
		return false, s.absorb("can earn", uid, err)
	}
	return can, nil
}

// Streak returns the current and longest activity streaks.
func (s *Service) Streak(ctx context.Context) domain.StreakSummary {
	s.opMu.RLock()
	defer s.opMu.RUnlock()

	uid, ok := s.begin(ctx)
	if !ok {
		return domain.StreakSummary{}
	}
	txs := s.transactions(ctx, uid)
	return engagement.CalculateStreak(engagement.ActivityDates(txs), s.now())
}

// UserStats returns the snapshot achievement rules are evaluated against.
func (s *Service) UserStats(ctx context.Context) domain.UserStatsSnapshot {
	s.opMu.RLock()
	defer s.opMu.RUnlock()

	uid, ok := s.begin(ctx)
	if !ok {
		return domain.UserStatsSnapshot{}
	}
	return engagement.DeriveStats(s.transactions(ctx, uid), s.now())
}

// History returns the user's point journal, oldest first.
func (s *Service) History(ctx context.Context) []domain.LedgerEntry {
	s.opMu.RLock()
	defer s.opMu.RUnlock()

	uid, ok := s.begin(ctx)
	if !ok {
		return nil
	}
	entries, err := s.ledger.Entries(ctx, uid)
	if err != nil {
		s.logger.Error("load journal failed", "user", uid, "error", err)
		return nil
	}
	return entries
}

// ─── Mutations ──────────────────────────────────────────────────────────────

// Award records actionID for the signed-in user. A running cooldown is a
// successful zero-point result.
func (s *Service) Award(ctx context.Context, actionID string) (domain.AwardResult, error) {
	s.opMu.RLock()
	defer s.opMu.RUnlock()

	uid, ok := s.begin(ctx)
	if !ok {
		return domain.AwardResult{NewLevel: 1}, nil
	}
	res, err := s.ledger.Award(ctx, uid, actionID, s.now())
	if err != nil {
		return domain.AwardResult{Message: unavailableMessage}, s.absorb("award", uid, err)
	}
	return res, nil
}

// EvaluateAchievements derives stats from the transaction ledger, records
// newly earned achievements and credits their rewards through the ledger.
func (s *Service) EvaluateAchievements(ctx context.Context) EvaluationResult {
	s.opMu.RLock()
	defer s.opMu.RUnlock()

	uid, ok := s.begin(ctx)
	if !ok {
		return EvaluationResult{}
	}
	return s.evaluate(ctx, uid)
}

func (s *Service) evaluate(ctx context.Context, uid string) EvaluationResult {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()

	start := time.Now()
	defer func() { metrics.EvaluationLatency.Observe(time.Since(start).Seconds()) }()

	now := s.now()
	stats := engagement.DeriveStats(s.transactions(ctx, uid), now)

	earned, err := s.store.LoadAchievements(ctx, uid)
	if err != nil {
		s.logger.Error("load achievements failed", "user", uid, "error", err)
		return EvaluationResult{}
	}
	ev := s.rules.Evaluate(uid, stats, earned, now)

	if len(ev.NewlyEarned) > 0 {
		if err := s.store.SaveAchievements(ctx, uid, ev.Achievements); err != nil {
			s.logger.Error("save achievements failed", "user", uid, "error", err)
			return EvaluationResult{}
		}
		for _, a := range ev.NewlyEarned {
			metrics.AchievementsEarned.WithLabelValues(a.AchievementID).Inc()
			s.logger.Info("achievement earned", "user", uid, "achievement", a.AchievementID, "points", a.PointsReward)
		}
	}

	// Crediting the full list is safe: the journal dedupes by achievement id,
	// and it repairs a credit lost between the save above and this call.
	award, err := s.ledger.CreditAchievements(ctx, uid, ev.Achievements, now)
	if err != nil {
		s.logger.Error("credit achievements failed", "user", uid, "error", err)
		return EvaluationResult{NewlyEarned: ev.NewlyEarned}
	}
	if len(ev.NewlyEarned) > 0 && award.PointsAwarded == 0 {
		// Achievements changed without new points; the ledger hook did not fire.
		s.changed(uid)
	}
	return EvaluationResult{NewlyEarned: ev.NewlyEarned, Award: award}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// begin resolves the user and makes sure the session has been hydrated.
func (s *Service) begin(ctx context.Context) (string, bool) {
	uid, ok := s.identity.UserID()
	if !ok || uid == "" {
		return "", false
	}

	s.sessMu.Lock()
	if s.session == nil || s.session.UserID != uid {
		if s.session != nil {
			s.sync.Forget(s.session)
		}
		s.session = syncer.NewSession(uid)
	}
	sess := s.session
	s.sessMu.Unlock()

	s.sync.Hydrate(ctx, sess)
	return uid, true
}

// changed is the ledger's post-persist hook. It must not block.
func (s *Service) changed(uid string) {
	s.sessMu.Lock()
	sess := s.session
	s.sessMu.Unlock()
	if sess == nil || sess.UserID != uid {
		return
	}
	s.sync.Changed(sess)
}

func (s *Service) progress(ctx context.Context, uid string) domain.Progress {
	state, err := s.ledger.State(ctx, uid, s.now())
	if err != nil {
		s.logger.Error("load progression failed", "user", uid, "error", err)
		return zeroProgress()
	}
	achs, err := s.store.LoadAchievements(ctx, uid)
	if err != nil {
		s.logger.Error("load achievements failed", "user", uid, "error", err)
	}
	return engagement.ProgressSummary(state, len(achs))
}

func (s *Service) transactions(ctx context.Context, uid string) []domain.Transaction {
	if s.txs == nil {
		return nil
	}
	txs, err := s.txs.Transactions(ctx, uid)
	if err != nil {
		s.logger.Warn("transaction source unavailable", "user", uid, "error", err)
		return nil
	}
	return txs
}

// absorb logs err and returns it only for catalog errors in strict mode.
func (s *Service) absorb(op, uid string, err error) error {
	if errors.Is(err, domain.ErrUnknownAction) {
		if s.strict {
			return err
		}
		s.logger.Error(op+": unknown action", "user", uid, "error", err)
		return nil
	}
	s.logger.Error(op+" failed", "user", uid, "error", err)
	return nil
}

func zeroProgress() domain.Progress {
	return engagement.ProgressSummary(domain.NewProgressionState(), 0)
}
