// Package ledger implements the XP ledger: a single append-only journal where
// discrete actions and achievement rewards are two event types feeding the
// same accumulator. Every read-modify-write runs under one mutex.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/biszaal/expenzez-sub007/internal/app/engagement"
	"github.com/biszaal/expenzez-sub007/internal/domain"
	"github.com/biszaal/expenzez-sub007/internal/infra/metrics"
)

// maxActionEntries bounds how many action entries a book keeps.
// Achievement entries are never trimmed: they carry the dedupe keys.
const maxActionEntries = 500

// Store persists one LedgerBook per user.
type Store interface {
	LoadBook(ctx context.Context, userID string) (domain.LedgerBook, error)
	SaveBook(ctx context.Context, userID string, book domain.LedgerBook) error
}

// ChangeHook is called after a book was persisted with new points.
// It runs under the ledger lock and must not block.
type ChangeHook func(userID string)

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(x *Ledger) { x.logger = l }
}

// WithChangeHook registers the post-persist hook (background push).
func WithChangeHook(h ChangeHook) Option {
	return func(x *Ledger) { x.onChange = h }
}

// Ledger manages cooldown-gated point awards and calendar-bounded counters.
type Ledger struct {
	mu       sync.Mutex
	store    Store
	catalog  *Catalog
	logger   *slog.Logger
	onChange ChangeHook
}

// New creates a ledger over store and catalog.
func New(store Store, catalog *Catalog, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		catalog: catalog,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	l.logger = l.logger.With("component", "ledger")
	return l
}

// SetChangeHook replaces the post-persist hook.
func (l *Ledger) SetChangeHook(h ChangeHook) {
	l.mu.Lock()
	l.onChange = h
	l.mu.Unlock()
}

// Exclusive runs fn under the ledger lock. Writers that bypass the ledger,
// remote hydrate and logout, use it so they never interleave with an award.
// fn must not call back into the ledger.
func (l *Ledger) Exclusive(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

// Catalog returns the action catalog.
func (l *Ledger) Catalog() *Catalog {
	return l.catalog
}

// Award grants an action's points unless its cooldown is still running.
//
// Order matters: the counter reset pass runs first, then the catalog lookup,
// then the cooldown check. A cooldown hit returns a zero-point result and
// leaves the persisted book untouched.
func (l *Ledger) Award(ctx context.Context, userID, actionID string, now time.Time) (domain.AwardResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	book, err := l.store.LoadBook(ctx, userID)
	if err != nil {
		return domain.AwardResult{}, fmt.Errorf("load book: %w", err)
	}
	work := cloneBook(book)
	ResetCounters(&work.State, now)

	def, ok := l.catalog.Lookup(actionID)
	if !ok {
		metrics.AwardsTotal.WithLabelValues(actionID, "unknown").Inc()
		return domain.AwardResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownAction, actionID)
	}

	if remaining := cooldownRemaining(work.State, def, now); remaining > 0 {
		metrics.AwardsTotal.WithLabelValues(def.ID, "cooldown").Inc()
		return domain.AwardResult{
			NewLevel:          engagement.LevelForPoints(book.State.TotalPoints),
			Message:           waitMessage(def, remaining),
			CooldownRemaining: remaining,
		}, nil
	}

	prevLevel := engagement.LevelForPoints(work.State.TotalPoints)
	apply(&work, domain.LedgerEntry{
		ID:         uuid.NewString(),
		Key:        fmt.Sprintf("action:%s:%d", def.ID, now.UnixNano()),
		Source:     domain.SourceAction,
		RefID:      def.ID,
		Points:     def.BasePoints,
		Cadence:    def.Cadence,
		RecordedAt: now,
	})
	work.State.LastActionTimestamps[def.ID] = now

	if err := l.store.SaveBook(ctx, userID, work); err != nil {
		return domain.AwardResult{}, fmt.Errorf("save book: %w", err)
	}

	res := domain.AwardResult{
		PointsAwarded: def.BasePoints,
		NewLevel:      work.State.Level,
		LeveledUp:     work.State.Level > prevLevel,
	}
	res.Message = awardMessage(def.DisplayName, res)

	metrics.AwardsTotal.WithLabelValues(def.ID, "awarded").Inc()
	metrics.PointsAwarded.WithLabelValues(string(domain.SourceAction)).Add(float64(def.BasePoints))
	if res.LeveledUp {
		metrics.LevelUps.Inc()
	}
	l.logger.Debug("points awarded", "user", userID, "action", def.ID,
		"points", def.BasePoints, "total", work.State.TotalPoints, "level", work.State.Level)

	l.notify(userID)
	return res, nil
}

// CreditAchievements journals each achievement reward exactly once.
// Rewards for ids already in the journal are skipped, so re-evaluating the
// catalog can never double count or overwrite earlier points.
func (l *Ledger) CreditAchievements(ctx context.Context, userID string, achievements []domain.Achievement, now time.Time) (domain.AwardResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	book, err := l.store.LoadBook(ctx, userID)
	if err != nil {
		return domain.AwardResult{}, fmt.Errorf("load book: %w", err)
	}
	work := cloneBook(book)
	ResetCounters(&work.State, now)
	prevLevel := engagement.LevelForPoints(work.State.TotalPoints)

	var credited int64
	var count int
	for _, a := range achievements {
		key := achievementKey(a.AchievementID)
		if a.PointsReward <= 0 || work.HasEntry(key) {
			continue
		}
		apply(&work, domain.LedgerEntry{
			ID:         uuid.NewString(),
			Key:        key,
			Source:     domain.SourceAchievement,
			RefID:      a.AchievementID,
			Points:     a.PointsReward,
			Cadence:    domain.CadenceMilestone,
			RecordedAt: now,
		})
		credited += a.PointsReward
		count++
	}

	if count == 0 {
		return domain.AwardResult{NewLevel: prevLevel}, nil
	}
	if err := l.store.SaveBook(ctx, userID, work); err != nil {
		return domain.AwardResult{}, fmt.Errorf("save book: %w", err)
	}

	res := domain.AwardResult{
		PointsAwarded: credited,
		NewLevel:      work.State.Level,
		LeveledUp:     work.State.Level > prevLevel,
	}
	res.Message = awardMessage(fmt.Sprintf("%d achievement(s)", count), res)

	metrics.PointsAwarded.WithLabelValues(string(domain.SourceAchievement)).Add(float64(credited))
	if res.LeveledUp {
		metrics.LevelUps.Inc()
	}
	l.logger.Info("achievement rewards credited", "user", userID, "count", count, "points", credited)

	l.notify(userID)
	return res, nil
}

// CanEarn reports whether actionID would award points at now.
func (l *Ledger) CanEarn(ctx context.Context, userID, actionID string, now time.Time) (bool, error) {
	def, ok := l.catalog.Lookup(actionID)
	if !ok {
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownAction, actionID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	book, err := l.store.LoadBook(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load book: %w", err)
	}
	return cooldownRemaining(book.State, def, now) == 0, nil
}

// State returns the user's state with counters rolled forward to now.
// The rolled view is not persisted; the next award persists it.
func (l *Ledger) State(ctx context.Context, userID string, now time.Time) (domain.UserProgressionState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	book, err := l.store.LoadBook(ctx, userID)
	if err != nil {
		return domain.UserProgressionState{}, fmt.Errorf("load book: %w", err)
	}
	state := book.State.Clone()
	ResetCounters(&state, now)
	return state, nil
}

// Entries returns the journal, oldest first.
func (l *Ledger) Entries(ctx context.Context, userID string) ([]domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	book, err := l.store.LoadBook(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}
	return book.Entries, nil
}

func (l *Ledger) notify(userID string) {
	if l.onChange != nil {
		l.onChange(userID)
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// apply adds entry to the accumulator, its cadence counter and the journal,
// then recomputes the level with the shared formula.
func apply(book *domain.LedgerBook, entry domain.LedgerEntry) {
	s := &book.State
	s.TotalPoints += entry.Points
	switch entry.Cadence {
	case domain.CadenceDaily:
		s.DailyPoints += entry.Points
	case domain.CadenceWeekly:
		s.WeeklyPoints += entry.Points
	case domain.CadenceMilestone:
		s.MonthlyPoints += entry.Points
	}
	s.Level = engagement.CalculateProgress(s.TotalPoints).Level
	book.Entries = trimEntries(append(book.Entries, entry))
}

func trimEntries(entries []domain.LedgerEntry) []domain.LedgerEntry {
	actions := 0
	for _, e := range entries {
		if e.Source == domain.SourceAction {
			actions++
		}
	}
	drop := actions - maxActionEntries
	if drop <= 0 {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Source == domain.SourceAction && drop > 0 {
			drop--
			continue
		}
		out = append(out, e)
	}
	return out
}

func cloneBook(b domain.LedgerBook) domain.LedgerBook {
	out := domain.LedgerBook{State: b.State.Clone()}
	out.Entries = make([]domain.LedgerEntry, len(b.Entries), len(b.Entries)+1)
	copy(out.Entries, b.Entries)
	return out
}

func cooldownRemaining(s domain.UserProgressionState, def domain.ActionDefinition, now time.Time) time.Duration {
	cd := def.Cooldown()
	if cd == 0 {
		return 0
	}
	last, ok := s.LastActionTimestamps[def.ID]
	if !ok {
		return 0
	}
	elapsed := now.Sub(last)
	if elapsed >= cd {
		return 0
	}
	return cd - elapsed
}

func waitMessage(def domain.ActionDefinition, remaining time.Duration) string {
	mins := int(math.Ceil(remaining.Minutes()))
	return fmt.Sprintf("Wait %d more minute(s) before earning points for %s again", mins, def.DisplayName)
}

func awardMessage(what string, res domain.AwardResult) string {
	msg := fmt.Sprintf("+%d points for %s", res.PointsAwarded, what)
	if res.LeveledUp {
		msg += fmt.Sprintf(". Level up! You reached level %d", res.NewLevel)
	}
	return msg
}

func achievementKey(id string) string {
	return "achievement:" + id
}
