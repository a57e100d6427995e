// Package domain holds the pure progression types shared by every layer.
// The progression engine turns financial activity into streaks, achievements,
// points and levels. Nothing in this package touches storage or the network.
package domain

import "time"

// PointsPerLevel is the fixed level span P: level = floor(points/P) + 1.
const PointsPerLevel int64 = 100

// ─── Actions ────────────────────────────────────────────────────────────────

// Cadence decides which rolling counter a reward contributes to.
type Cadence string

const (
	CadenceDaily     Cadence = "daily"
	CadenceWeekly    Cadence = "weekly"
	CadenceMilestone Cadence = "milestone"
)

// Valid reports whether c is one of the known cadences.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMilestone:
		return true
	}
	return false
}

// ActionDefinition is an immutable catalog entry for a point-earning action.
type ActionDefinition struct {
	ID              string  `json:"id" toml:"id"`
	DisplayName     string  `json:"display_name" toml:"display_name"`
	BasePoints      int64   `json:"base_points" toml:"base_points"`
	Cadence         Cadence `json:"cadence" toml:"cadence"`
	CooldownMinutes int     `json:"cooldown_minutes,omitempty" toml:"cooldown_minutes"` // 0 = no cooldown
}

// Cooldown returns the cooldown as a duration (0 when unset).
func (a ActionDefinition) Cooldown() time.Duration {
	if a.CooldownMinutes <= 0 {
		return 0
	}
	return time.Duration(a.CooldownMinutes) * time.Minute
}

// ─── Progression State ──────────────────────────────────────────────────────

// UserProgressionState is the ledger-owned accumulator for one user.
type UserProgressionState struct {
	TotalPoints          int64                `json:"total_points"`
	Level                int                  `json:"level"`
	LastActionTimestamps map[string]time.Time `json:"last_action_timestamps"`
	DailyPoints          int64                `json:"daily_points"`
	WeeklyPoints         int64                `json:"weekly_points"`
	MonthlyPoints        int64                `json:"monthly_points"`
	LastResetDate        time.Time            `json:"last_reset_date"`
}

// NewProgressionState returns the zero-value state at level 1.
func NewProgressionState() UserProgressionState {
	return UserProgressionState{
		Level:                1,
		LastActionTimestamps: make(map[string]time.Time),
	}
}

// Clone returns a deep copy so callers can mutate without aliasing the map.
func (s UserProgressionState) Clone() UserProgressionState {
	out := s
	out.LastActionTimestamps = make(map[string]time.Time, len(s.LastActionTimestamps))
	for k, v := range s.LastActionTimestamps {
		out.LastActionTimestamps[k] = v
	}
	return out
}

// AwardResult is the outcome of one award attempt.
// A cooldown is not an error: PointsAwarded is 0 and Message explains the wait.
type AwardResult struct {
	PointsAwarded     int64         `json:"points_awarded"`
	NewLevel          int           `json:"new_level"`
	LeveledUp         bool          `json:"leveled_up"`
	Message           string        `json:"message"`
	CooldownRemaining time.Duration `json:"cooldown_remaining,omitempty"`
}

// LevelProgress is the output of the shared leveling formula.
type LevelProgress struct {
	Level         int     `json:"level"`
	PointsInLevel int64   `json:"points_in_level"`
	PointsToNext  int64   `json:"points_to_next"`
	PercentToNext float64 `json:"percent_to_next"` // 0.0–1.0
}

// Progress is the summary exposed to the UI.
type Progress struct {
	Level             int     `json:"level"`
	TotalPoints       int64   `json:"total_points"`
	PointsInLevel     int64   `json:"points_in_level"`
	PointsToNextLevel int64   `json:"points_to_next_level"`
	PercentToNext     float64 `json:"percent_to_next"`
	AchievementCount  int     `json:"achievement_count"`
}

// ─── Ledger Journal ─────────────────────────────────────────────────────────

// EntrySource distinguishes the two event types feeding the accumulator.
type EntrySource string

const (
	SourceAction      EntrySource = "action"
	SourceAchievement EntrySource = "achievement"
)

// LedgerEntry is one append-only journal record. Key is unique per user.
type LedgerEntry struct {
	ID         string      `json:"id"`
	Key        string      `json:"key"`
	Source     EntrySource `json:"source"`
	RefID      string      `json:"ref_id"`
	Points     int64       `json:"points"`
	Cadence    Cadence     `json:"cadence"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// LedgerBook is the durable unit persisted per user: the accumulator and
// the journal that produced it, saved together so they cannot drift apart.
type LedgerBook struct {
	State   UserProgressionState `json:"state"`
	Entries []LedgerEntry        `json:"entries"`
}

// NewLedgerBook returns an empty book at level 1.
func NewLedgerBook() LedgerBook {
	return LedgerBook{State: NewProgressionState()}
}

// HasEntry reports whether an entry with key was already journaled.
func (b LedgerBook) HasEntry(key string) bool {
	for _, e := range b.Entries {
		if e.Key == key {
			return true
		}
	}
	return false
}

// ─── Streaks ────────────────────────────────────────────────────────────────

// StreakSummary is the result of a streak scan over activity dates.
type StreakSummary struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// ─── Achievements ───────────────────────────────────────────────────────────

// AchievementType names the statistic a rule looks at.
type AchievementType string

const (
	TypeTransactions AchievementType = "transactions"
	TypeCategories   AchievementType = "categories"
	TypeStreak       AchievementType = "streak"
	TypeTenure       AchievementType = "tenure"
	TypeSavings      AchievementType = "savings"
)

// AchievementCategory groups achievements by theme.
type AchievementCategory string

const (
	CatGettingStarted AchievementCategory = "getting_started"
	CatConsistency    AchievementCategory = "consistency"
	CatBudgeting      AchievementCategory = "budgeting"
	CatSavings        AchievementCategory = "savings"
)

// Difficulty ranks how hard an achievement is to earn.
type Difficulty string

const (
	DifficultyEasy      Difficulty = "easy"
	DifficultyMedium    Difficulty = "medium"
	DifficultyHard      Difficulty = "hard"
	DifficultyLegendary Difficulty = "legendary"
)

// Achievement is an earned award. Append-only: never mutated or deleted.
type Achievement struct {
	UserID        string              `json:"user_id"`
	AchievementID string              `json:"achievement_id"`
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Type          AchievementType     `json:"type"`
	Category      AchievementCategory `json:"category"`
	Difficulty    Difficulty          `json:"difficulty"`
	PointsReward  int64               `json:"points_reward"`
	EarnedAt      time.Time           `json:"earned_at"`
	Metadata      map[string]string   `json:"metadata,omitempty"`
}

// UserStatsSnapshot is derived from the transaction ledger and never persisted.
// It is the only input to achievement predicates.
type UserStatsSnapshot struct {
	TotalTransactions int     `json:"total_transactions"`
	CategoriesUsed    int     `json:"categories_used"`
	MonthsActive      int     `json:"months_active"`
	CurrentStreak     int     `json:"current_streak"`
	LongestStreak     int     `json:"longest_streak"`
	SavingsRate       float64 `json:"savings_rate"` // (income-expenses)/income
	TotalSaved        float64 `json:"total_saved"`
}

// ─── Event Source ───────────────────────────────────────────────────────────

// Transaction is a read-only record from the financial ledger.
// Positive amounts are income, negative amounts are expenses.
type Transaction struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Date     time.Time `json:"date"`
	Amount   float64   `json:"amount"`
	Category string    `json:"category"`
}

// ─── Remote Wire Shape ──────────────────────────────────────────────────────

// RemoteRecord is what the authoritative service stores per user.
type RemoteRecord struct {
	Progression  UserProgressionState `json:"progression"`
	Achievements []Achievement        `json:"achievements"`
	UpdatedAt    time.Time            `json:"updated_at"`
}
