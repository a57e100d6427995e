package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/biszaal/expenzez-sub007/internal/app/engagement"
	"github.com/biszaal/expenzez-sub007/internal/daemon"
	"github.com/biszaal/expenzez-sub007/internal/domain"
)

func init() {
	rootCmd.AddCommand(progressCmd)
}

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show level, points and achievement count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			p := d.Progression.StartSession(ctx)
			if jsonFlag {
				return printJSON(p)
			}
			printProgress(os.Stdout, p)
			return nil
		})
	},
}

// ─── Level Bar ──────────────────────────────────────────────────────────────
// Level 4 [=========>....................] 33% | 333 pts | 67 to level 5 at 400 pts

const barWidth = 30 // Characters for the progress bar

func printProgress(w io.Writer, p domain.Progress) {
	next := p.Level + 1
	fmt.Fprintf(w, "Level %d %s %3.0f%% | %d pts | %d to level %d at %d pts\n",
		p.Level, renderBar(p.PercentToNext), p.PercentToNext*100,
		p.TotalPoints, p.PointsToNextLevel, next, engagement.PointsForLevel(next))
	fmt.Fprintf(w, "Achievements: %d\n", p.AchievementCount)
}

// renderBar draws frac (0.0–1.0) as [=====>.....].
func renderBar(frac float64) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}

	filled := int(frac * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	var bar string
	if filled == barWidth {
		bar = strings.Repeat("=", filled)
	} else if filled > 0 {
		bar = strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty)
	} else {
		bar = strings.Repeat(".", barWidth)
	}
	return "[" + bar + "]"
}
