package engagement

import (
	"strings"
	"time"

	"github.com/biszaal/expenzez-sub007/internal/domain"
)

// DeriveStats builds the UserStatsSnapshot fed to achievement predicates.
// Categories are compared case-insensitively; blank categories are ignored.
func DeriveStats(txs []domain.Transaction, today time.Time) domain.UserStatsSnapshot {
	var stats domain.UserStatsSnapshot
	if len(txs) == 0 {
		return stats
	}

	categories := make(map[string]bool)
	months := make(map[string]bool)
	var income, expenses float64

	loc := today.Location()
	for _, tx := range txs {
		stats.TotalTransactions++
		if c := strings.ToLower(strings.TrimSpace(tx.Category)); c != "" {
			categories[c] = true
		}
		months[tx.Date.In(loc).Format("2006-01")] = true

		if tx.Amount > 0 {
			income += tx.Amount
		} else {
			expenses += -tx.Amount
		}
	}

	stats.CategoriesUsed = len(categories)
	stats.MonthsActive = len(months)

	streak := CalculateStreak(ActivityDates(txs), today)
	stats.CurrentStreak = streak.Current
	stats.LongestStreak = streak.Longest

	stats.TotalSaved = income - expenses
	if income > 0 {
		stats.SavingsRate = (income - expenses) / income
	}
	return stats
}
