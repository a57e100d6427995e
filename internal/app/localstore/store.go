// Package localstore is the durable local cache of progression state and
// earned achievements, keyed by user over any domain.KVStore.
//
// Layout:
//
//	progression:<userID>   → JSON LedgerBook (state + journal)
//	achievements:<userID>  → JSON []Achievement
//	pending:<userID>       → mark of the latest change not yet pushed
//
// A record that fails to decode is discarded and reinitialized to zero.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/biszaal/expenzez-sub007/internal/app/engagement"
	"github.com/biszaal/expenzez-sub007/internal/domain"
	"github.com/biszaal/expenzez-sub007/internal/infra/metrics"
)

const (
	progressionPrefix  = "progression:"
	achievementsPrefix = "achievements:"
	pendingPrefix      = "pending:"
)

// Store reads and writes per-user progression records.
type Store struct {
	kv     domain.KVStore
	logger *slog.Logger

	pendingMu sync.Mutex // serializes mark check-and-clear
}

// New creates a Store over kv.
func New(kv domain.KVStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger.With("component", "localstore")}
}

// ─── Ledger Book ────────────────────────────────────────────────────────────

// LoadBook returns the user's book, or a fresh level-1 book when none exists
// or the stored one is corrupt.
func (s *Store) LoadBook(ctx context.Context, userID string) (domain.LedgerBook, error) {
	raw, ok, err := s.kv.Get(ctx, progressionPrefix+userID)
	if err != nil {
		return domain.LedgerBook{}, fmt.Errorf("get progression: %w", err)
	}
	if !ok {
		return domain.NewLedgerBook(), nil
	}

	var book domain.LedgerBook
	if err := json.Unmarshal([]byte(raw), &book); err != nil {
		s.corrupt(ctx, "progression", userID, err)
		return domain.NewLedgerBook(), nil
	}
	normalize(&book.State)
	return book, nil
}

// SaveBook persists book synchronously.
func (s *Store) SaveBook(ctx context.Context, userID string, book domain.LedgerBook) error {
	data, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("marshal progression: %w", err)
	}
	if err := s.kv.Set(ctx, progressionPrefix+userID, string(data)); err != nil {
		return fmt.Errorf("set progression: %w", err)
	}
	return nil
}

// ─── Achievements ───────────────────────────────────────────────────────────

// LoadAchievements returns the user's earned achievements in earn order.
func (s *Store) LoadAchievements(ctx context.Context, userID string) ([]domain.Achievement, error) {
	raw, ok, err := s.kv.Get(ctx, achievementsPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("get achievements: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var out []domain.Achievement
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.corrupt(ctx, "achievements", userID, err)
		return nil, nil
	}
	return out, nil
}

// SaveAchievements replaces the user's achievement list.
func (s *Store) SaveAchievements(ctx context.Context, userID string, achievements []domain.Achievement) error {
	if achievements == nil {
		achievements = []domain.Achievement{}
	}
	data, err := json.Marshal(achievements)
	if err != nil {
		return fmt.Errorf("marshal achievements: %w", err)
	}
	if err := s.kv.Set(ctx, achievementsPrefix+userID, string(data)); err != nil {
		return fmt.Errorf("set achievements: %w", err)
	}
	return nil
}

// ─── Remote Reconciliation ──────────────────────────────────────────────────

// ReplaceFromRemote overwrites local state with an authoritative record.
// The journal is rebuilt from the record's achievements so rewards the remote
// already counted are never credited a second time.
func (s *Store) ReplaceFromRemote(ctx context.Context, userID string, rec domain.RemoteRecord) error {
	state := rec.Progression.Clone()
	normalize(&state)

	book := domain.LedgerBook{State: state}
	for _, a := range rec.Achievements {
		if a.PointsReward <= 0 {
			continue
		}
		book.Entries = append(book.Entries, domain.LedgerEntry{
			ID:         "remote:" + a.AchievementID,
			Key:        "achievement:" + a.AchievementID,
			Source:     domain.SourceAchievement,
			RefID:      a.AchievementID,
			Points:     a.PointsReward,
			Cadence:    domain.CadenceMilestone,
			RecordedAt: a.EarnedAt,
		})
	}

	if err := s.SaveBook(ctx, userID, book); err != nil {
		return err
	}
	return s.SaveAchievements(ctx, userID, rec.Achievements)
}

// Snapshot builds the record pushed to the remote service.
func (s *Store) Snapshot(ctx context.Context, userID string, now time.Time) (domain.RemoteRecord, error) {
	book, err := s.LoadBook(ctx, userID)
	if err != nil {
		return domain.RemoteRecord{}, err
	}
	achs, err := s.LoadAchievements(ctx, userID)
	if err != nil {
		return domain.RemoteRecord{}, err
	}
	if achs == nil {
		achs = []domain.Achievement{}
	}
	return domain.RemoteRecord{
		Progression:  book.State,
		Achievements: achs,
		UpdatedAt:    now,
	}, nil
}

// ─── Pending Mark ───────────────────────────────────────────────────────────

// MarkPending records that userID has local changes the remote has not
// acknowledged. Every call writes a fresh mark.
func (s *Store) MarkPending(ctx context.Context, userID string) (string, error) {
	mark := uuid.NewString()

	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if err := s.kv.Set(ctx, pendingPrefix+userID, mark); err != nil {
		return "", fmt.Errorf("set pending mark: %w", err)
	}
	return mark, nil
}

// PendingMark returns the current mark, if any.
func (s *Store) PendingMark(ctx context.Context, userID string) (string, bool, error) {
	mark, ok, err := s.kv.Get(ctx, pendingPrefix+userID)
	if err != nil {
		return "", false, fmt.Errorf("get pending mark: %w", err)
	}
	return mark, ok, nil
}

// ClearPending removes the mark only if it still equals mark. A newer mark
// belongs to a change made after the pushed snapshot was taken.
func (s *Store) ClearPending(ctx context.Context, userID, mark string) error {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	cur, ok, err := s.kv.Get(ctx, pendingPrefix+userID)
	if err != nil {
		return fmt.Errorf("get pending mark: %w", err)
	}
	if !ok || cur != mark {
		return nil
	}
	if err := s.kv.Remove(ctx, pendingPrefix+userID); err != nil {
		return fmt.Errorf("remove pending mark: %w", err)
	}
	return nil
}

// Clear removes every record for userID, including its pending mark.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if err := s.kv.Remove(ctx, progressionPrefix+userID); err != nil {
		return fmt.Errorf("remove progression: %w", err)
	}
	if err := s.kv.Remove(ctx, achievementsPrefix+userID); err != nil {
		return fmt.Errorf("remove achievements: %w", err)
	}
	if err := s.kv.Remove(ctx, pendingPrefix+userID); err != nil {
		return fmt.Errorf("remove pending mark: %w", err)
	}
	return nil
}

func (s *Store) corrupt(ctx context.Context, kind, userID string, cause error) {
	metrics.StorageCorruptions.WithLabelValues(kind).Inc()
	s.logger.Warn("discarding corrupt record",
		"kind", kind, "user", userID,
		"error", fmt.Errorf("%w: %v", domain.ErrStorageCorruption, cause))

	var key string
	switch kind {
	case "progression":
		key = progressionPrefix + userID
	default:
		key = achievementsPrefix + userID
	}
	if err := s.kv.Remove(ctx, key); err != nil {
		s.logger.Warn("remove corrupt record failed", "key", key, "error", err)
	}
}

// normalize restores the invariants a decoded state must hold.
func normalize(state *domain.UserProgressionState) {
	if state.LastActionTimestamps == nil {
		state.LastActionTimestamps = make(map[string]time.Time)
	}
	if state.TotalPoints < 0 {
		state.TotalPoints = 0
	}
	state.Level = engagement.LevelForPoints(state.TotalPoints)
}
