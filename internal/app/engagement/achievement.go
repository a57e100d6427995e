package engagement

import (
	"fmt"
	"strconv"
	"time"

	"github.com/biszaal/expenzez-sub007/internal/domain"
)

// AchievementRule is one catalog entry with a stat-based predicate.
type AchievementRule struct {
	ID          string
	Title       string
	Description string
	Type        domain.AchievementType
	Category    domain.AchievementCategory
	Difficulty  domain.Difficulty
	Points      int64
	Predicate   func(domain.UserStatsSnapshot) bool
}

// Evaluation is the outcome of one pass over the catalog.
// Achievements is the full earned list (previous + new), NewlyEarned only the new ones.
type Evaluation struct {
	Achievements []domain.Achievement
	NewlyEarned  []domain.Achievement
}

// Points sums the rewards of the newly earned achievements.
func (e Evaluation) Points() int64 {
	var total int64
	for _, a := range e.NewlyEarned {
		total += a.PointsReward
	}
	return total
}

// RuleEngine evaluates an ordered achievement catalog against a stats snapshot.
// It is pure: earned state is passed in, never held.
type RuleEngine struct {
	rules []AchievementRule
	index map[string]int
}

// NewRuleEngine validates the catalog (unique ids, predicates present).
func NewRuleEngine(rules []AchievementRule) (*RuleEngine, error) {
	index := make(map[string]int, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("achievement rule %d: empty id", i)
		}
		if r.Predicate == nil {
			return nil, fmt.Errorf("achievement rule %q: nil predicate", r.ID)
		}
		if _, dup := index[r.ID]; dup {
			return nil, fmt.Errorf("achievement rule %q: duplicate id", r.ID)
		}
		index[r.ID] = i
	}
	return &RuleEngine{rules: rules, index: index}, nil
}

// DefaultRuleEngine returns an engine over AllAchievements.
func DefaultRuleEngine() *RuleEngine {
	e, err := NewRuleEngine(AllAchievements())
	if err != nil {
		panic(err) // static catalog
	}
	return e
}

// Evaluate synthesizes an Achievement for every satisfied rule not yet earned.
// Earned achievements are never revoked, even when stats regress, and rules are
// visited in catalog order so the output is deterministic.
func (e *RuleEngine) Evaluate(userID string, stats domain.UserStatsSnapshot, earned []domain.Achievement, now time.Time) Evaluation {
	have := EarnedIDs(earned)

	out := Evaluation{Achievements: make([]domain.Achievement, 0, len(earned)+1)}
	out.Achievements = append(out.Achievements, earned...)

	for _, r := range e.rules {
		if have[r.ID] {
			continue
		}
		if !r.Predicate(stats) {
			continue
		}
		a := domain.Achievement{
			UserID:        userID,
			AchievementID: r.ID,
			Title:         r.Title,
			Description:   r.Description,
			Type:          r.Type,
			Category:      r.Category,
			Difficulty:    r.Difficulty,
			PointsReward:  r.Points,
			EarnedAt:      now,
			Metadata:      snapshotMetadata(r.Type, stats),
		}
		have[r.ID] = true
		out.NewlyEarned = append(out.NewlyEarned, a)
		out.Achievements = append(out.Achievements, a)
	}
	return out
}

// Rule returns the catalog entry for id.
func (e *RuleEngine) Rule(id string) (AchievementRule, bool) {
	i, ok := e.index[id]
	if !ok {
		return AchievementRule{}, false
	}
	return e.rules[i], true
}

// Rules returns the catalog in evaluation order.
func (e *RuleEngine) Rules() []AchievementRule {
	return e.rules
}

// EarnedIDs builds the alreadyEarned set.
func EarnedIDs(earned []domain.Achievement) map[string]bool {
	ids := make(map[string]bool, len(earned))
	for _, a := range earned {
		ids[a.AchievementID] = true
	}
	return ids
}

// snapshotMetadata records the stat value that satisfied the rule.
func snapshotMetadata(t domain.AchievementType, s domain.UserStatsSnapshot) map[string]string {
	switch t {
	case domain.TypeTransactions:
		return map[string]string{"total_transactions": strconv.Itoa(s.TotalTransactions)}
	case domain.TypeCategories:
		return map[string]string{"categories_used": strconv.Itoa(s.CategoriesUsed)}
	case domain.TypeStreak:
		return map[string]string{
			"current_streak": strconv.Itoa(s.CurrentStreak),
			"longest_streak": strconv.Itoa(s.LongestStreak),
		}
	case domain.TypeTenure:
		return map[string]string{"months_active": strconv.Itoa(s.MonthsActive)}
	case domain.TypeSavings:
		return map[string]string{
			"savings_rate": strconv.FormatFloat(s.SavingsRate, 'f', 4, 64),
			"total_saved":  strconv.FormatFloat(s.TotalSaved, 'f', 2, 64),
		}
	}
	return nil
}

// ─── Achievement Catalog ────────────────────────────────────────────────────
// Ordered: evaluation and listing follow this order.

// AllAchievements returns the full achievement catalog.
func AllAchievements() []AchievementRule {
	return []AchievementRule{
		// ── Getting Started ────────────────────────────────────────────
		{
			ID: "first_transaction", Title: "First Steps", Description: "Record your first transaction",
			Type: domain.TypeTransactions, Category: domain.CatGettingStarted, Difficulty: domain.DifficultyEasy, Points: 10,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.TotalTransactions >= 1 },
		},
		{
			ID: "transactions_10", Title: "Getting the Hang of It", Description: "Record 10 transactions",
			Type: domain.TypeTransactions, Category: domain.CatGettingStarted, Difficulty: domain.DifficultyEasy, Points: 25,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.TotalTransactions >= 10 },
		},
		{
			ID: "transactions_50", Title: "Bookkeeper", Description: "Record 50 transactions",
			Type: domain.TypeTransactions, Category: domain.CatGettingStarted, Difficulty: domain.DifficultyMedium, Points: 50,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.TotalTransactions >= 50 },
		},
		{
			ID: "transactions_250", Title: "Ledger Master", Description: "Record 250 transactions",
			Type: domain.TypeTransactions, Category: domain.CatGettingStarted, Difficulty: domain.DifficultyHard, Points: 150,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.TotalTransactions >= 250 },
		},

		// ── Budgeting ──────────────────────────────────────────────────
		{
			ID: "categories_3", Title: "Organizer", Description: "Use 3 different spending categories",
			Type: domain.TypeCategories, Category: domain.CatBudgeting, Difficulty: domain.DifficultyEasy, Points: 15,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.CategoriesUsed >= 3 },
		},
		{
			ID: "categories_8", Title: "Category Connoisseur", Description: "Use 8 different spending categories",
			Type: domain.TypeCategories, Category: domain.CatBudgeting, Difficulty: domain.DifficultyMedium, Points: 40,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.CategoriesUsed >= 8 },
		},

		// ── Consistency ────────────────────────────────────────────────
		{
			ID: "streak_3", Title: "On a Roll", Description: "Track spending 3 days in a row",
			Type: domain.TypeStreak, Category: domain.CatConsistency, Difficulty: domain.DifficultyEasy, Points: 20,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.CurrentStreak >= 3 },
		},
		{
			ID: "streak_7", Title: "Week Warrior", Description: "Track spending 7 days in a row",
			Type: domain.TypeStreak, Category: domain.CatConsistency, Difficulty: domain.DifficultyMedium, Points: 50,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.CurrentStreak >= 7 },
		},
		{
			ID: "streak_30", Title: "Monthly Machine", Description: "Track spending 30 days in a row",
			Type: domain.TypeStreak, Category: domain.CatConsistency, Difficulty: domain.DifficultyHard, Points: 200,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.CurrentStreak >= 30 },
		},
		{
			ID: "longest_streak_14", Title: "Fortnight Focus", Description: "Reach a 14-day best streak",
			Type: domain.TypeStreak, Category: domain.CatConsistency, Difficulty: domain.DifficultyMedium, Points: 75,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.LongestStreak >= 14 },
		},
		{
			ID: "months_3", Title: "Quarter In", Description: "Be active in 3 different months",
			Type: domain.TypeTenure, Category: domain.CatConsistency, Difficulty: domain.DifficultyMedium, Points: 50,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.MonthsActive >= 3 },
		},
		{
			ID: "months_12", Title: "Year of Tracking", Description: "Be active in 12 different months",
			Type: domain.TypeTenure, Category: domain.CatConsistency, Difficulty: domain.DifficultyLegendary, Points: 500,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.MonthsActive >= 12 },
		},

		// ── Savings ────────────────────────────────────────────────────
		{
			ID: "savings_rate_10", Title: "Saver", Description: "Keep a savings rate of at least 10%",
			Type: domain.TypeSavings, Category: domain.CatSavings, Difficulty: domain.DifficultyMedium, Points: 50,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.SavingsRate >= 0.10 },
		},
		{
			ID: "savings_rate_30", Title: "Super Saver", Description: "Keep a savings rate of at least 30%",
			Type: domain.TypeSavings, Category: domain.CatSavings, Difficulty: domain.DifficultyHard, Points: 150,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.SavingsRate >= 0.30 },
		},
		{
			ID: "saved_1000", Title: "First Thousand", Description: "Save 1,000 in total",
			Type: domain.TypeSavings, Category: domain.CatSavings, Difficulty: domain.DifficultyMedium, Points: 100,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.TotalSaved >= 1000 },
		},
		{
			ID: "saved_10000", Title: "Nest Egg", Description: "Save 10,000 in total",
			Type: domain.TypeSavings, Category: domain.CatSavings, Difficulty: domain.DifficultyLegendary, Points: 1000,
			Predicate: func(s domain.UserStatsSnapshot) bool { return s.TotalSaved >= 10000 },
		},
	}
}
