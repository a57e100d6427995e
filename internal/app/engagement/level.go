package engagement

import "github.com/biszaal/expenzez-sub007/internal/domain"

// CalculateProgress is the single leveling formula used by every caller.
// Linear curve: level = floor(points / P) + 1 with P = domain.PointsPerLevel.
func CalculateProgress(totalPoints int64) domain.LevelProgress {
	if totalPoints < 0 {
		totalPoints = 0
	}
	p := domain.PointsPerLevel
	inLevel := totalPoints % p
	return domain.LevelProgress{
		Level:         LevelForPoints(totalPoints),
		PointsInLevel: inLevel,
		PointsToNext:  p - inLevel,
		PercentToNext: float64(inLevel) / float64(p),
	}
}

// LevelForPoints returns the level reached at totalPoints.
func LevelForPoints(totalPoints int64) int {
	if totalPoints < 0 {
		return 1
	}
	return int(totalPoints/domain.PointsPerLevel) + 1
}

// PointsForLevel returns the cumulative points needed to reach level.
func PointsForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	return int64(level-1) * domain.PointsPerLevel
}

// ProgressSummary builds the UI summary from a ledger state.
func ProgressSummary(state domain.UserProgressionState, achievementCount int) domain.Progress {
	lp := CalculateProgress(state.TotalPoints)
	return domain.Progress{
		Level:             lp.Level,
		TotalPoints:       state.TotalPoints,
		PointsInLevel:     lp.PointsInLevel,
		PointsToNextLevel: lp.PointsToNext,
		PercentToNext:     lp.PercentToNext,
		AchievementCount:  achievementCount,
	}
}
