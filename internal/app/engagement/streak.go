// Package engagement implements the pure progression calculators:
// activity streaks, the shared leveling formula, user stats derivation and the
// achievement rule engine. Nothing here performs I/O.
package engagement

import (
	"sort"
	"time"

	"github.com/biszaal/expenzez-sub007/internal/domain"
)

// CalculateStreak scans activity dates for consecutive-day runs.
// Dates are collapsed to calendar days in today's location, so several events on
// one day count once. Current is the run ending today or yesterday, else 0;
// future-dated activity counts toward Longest only.
func CalculateStreak(dates []time.Time, today time.Time) domain.StreakSummary {
	if len(dates) == 0 {
		return domain.StreakSummary{}
	}

	loc := today.Location()
	seen := make(map[time.Time]bool, len(dates))
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := startOfDay(d.In(loc))
		if seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var summary domain.StreakSummary
	today = startOfDay(today)
	run := 0
	var prev time.Time
	var lastPast time.Time // latest active day not after today
	runAtLastPast := 0
	for i, day := range days {
		if i > 0 && daysBetween(prev, day) == 1 {
			run++
		} else {
			run = 1
		}
		if run > summary.Longest {
			summary.Longest = run
		}
		if !day.After(today) {
			lastPast, runAtLastPast = day, run
		}
		prev = day
	}

	// Days after today have not happened yet and never extend the current run.
	if !lastPast.IsZero() {
		if gap := daysBetween(lastPast, today); gap == 0 || gap == 1 {
			summary.Current = runAtLastPast
		}
	}
	return summary
}

// ActivityDates extracts the event dates from transactions.
func ActivityDates(txs []domain.Transaction) []time.Time {
	dates := make([]time.Time, 0, len(txs))
	for _, tx := range txs {
		dates = append(dates, tx.Date)
	}
	return dates
}

// startOfDay truncates t to midnight in its own location.
// time.Truncate works in UTC, which would split local days.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b, both at local midnight.
// Rounding absorbs the 23h/25h days around DST changes.
func daysBetween(a, b time.Time) int {
	hours := b.Sub(a).Hours()
	if hours >= 0 {
		return int(hours/24 + 0.5)
	}
	return -int(-hours/24 + 0.5)
}
