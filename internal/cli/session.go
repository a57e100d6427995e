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
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the local progression cache of the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			if err := d.Progression.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("Local progression cleared.")
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the point journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			entries := d.Progression.History(ctx)
			if jsonFlag {
				return printJSON(entries)
			}
			if len(entries) == 0 {
				fmt.Println("No points earned yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tSOURCE\tREF\tPOINTS")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t+%d\n",
					e.RecordedAt.Local().Format("2006-01-02 15:04"), e.Source, e.RefID, e.Points)
			}
			return w.Flush()
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show health checks and sync queue state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			d.Health.RunOnce(ctx)
			stats := d.Progression.Stats()
			if jsonFlag {
				return printJSON(map[string]any{
					"health": d.Health.Statuses(),
					"push":   stats,
				})
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHECK\tHEALTHY\tERROR")
			for _, s := range d.Health.Statuses() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, yesNo(s.Healthy), s.Error)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			remote := "local only"
			if d.Remote != nil {
				remote = fmt.Sprintf("%s (breaker %s)", d.Config.Remote.BaseURL, d.Remote.Breaker().State())
			}
			fmt.Printf("\nRemote: %s\n", remote)
			fmt.Printf("Pending pushes: %d (pushed %d, failed %d)\n", stats.Pending, stats.TotalPushed, stats.TotalFailed)
			return nil
		})
	},
}
