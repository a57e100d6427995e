package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/biszaal/expenzez-sub007/internal/daemon"
)

func init() {
	rootCmd.AddCommand(achievementsCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(streakCmd)
}

var achievementsCmd = &cobra.Command{
	Use:     "achievements",
	Aliases: []string{"ach"},
	Short:   "List earned achievements",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			achs := d.Progression.ListAchievements(ctx)
			if jsonFlag {
				return printJSON(achs)
			}
			if len(achs) == 0 {
				fmt.Println("No achievements yet. Run 'expenzez evaluate' after adding transactions.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tDIFFICULTY\tPOINTS\tEARNED")
			for _, a := range achs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					a.AchievementID, a.Title, a.Difficulty, a.PointsReward,
					a.EarnedAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		})
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Check transactions for newly earned achievements",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			ev := d.Progression.EvaluateAchievements(ctx)
			if jsonFlag {
				return printJSON(ev)
			}
			if len(ev.NewlyEarned) == 0 {
				fmt.Println("No new achievements.")
				return nil
			}
			for _, a := range ev.NewlyEarned {
				fmt.Printf("Unlocked: %s (+%d) %s\n", a.Title, a.PointsReward, a.Description)
			}
			if ev.Award.Message != "" {
				fmt.Println(ev.Award.Message)
			}
			return nil
		})
	},
}

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show current and longest activity streaks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			s := d.Progression.Streak(ctx)
			if jsonFlag {
				return printJSON(s)
			}
			fmt.Printf("Current streak: %d day(s)\n", s.Current)
			fmt.Printf("Longest streak: %d day(s)\n", s.Longest)
			return nil
		})
	},
}
