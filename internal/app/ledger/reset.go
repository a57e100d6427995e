package ledger

import (
	"fmt"
	"time"

	"github.com/biszaal/expenzez-sub007/internal/domain"
)

// Rollover reports which calendar boundaries were crossed by a reset pass.
type Rollover struct {
	Day   bool
	Week  bool
	Month bool
}

// Any reports whether at least one counter was zeroed.
func (r Rollover) Any() bool {
	return r.Day || r.Week || r.Month
}

// ResetCounters zeroes the daily, weekly and monthly counters independently
// for every boundary between state.LastResetDate and now, then stamps
// LastResetDate = now. All keys are computed in now's location so a single
// reference clock decides every boundary.
func ResetCounters(state *domain.UserProgressionState, now time.Time) Rollover {
	var r Rollover
	if state.LastResetDate.IsZero() {
		r = Rollover{Day: true, Week: true, Month: true}
	} else {
		last := state.LastResetDate.In(now.Location())
		r.Day = dayKey(last) != dayKey(now)
		r.Week = weekKey(last) != weekKey(now)
		r.Month = monthKey(last) != monthKey(now)
	}

	if r.Day {
		state.DailyPoints = 0
	}
	if r.Week {
		state.WeeklyPoints = 0
	}
	if r.Month {
		state.MonthlyPoints = 0
	}
	state.LastResetDate = now
	return r
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// weekKey returns "YYYY-Www" for the ISO week of t.
func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}
