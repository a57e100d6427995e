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
	rootCmd.AddCommand(awardCmd)
	rootCmd.AddCommand(actionsCmd)
}

var awardCmd = &cobra.Command{
	Use:   "award ACTION",
	Short: "Record a point-earning action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			res, err := d.Progression.Award(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(res)
			}
			if res.Message != "" {
				fmt.Println(res.Message)
			}
			return nil
		})
	},
}

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List point-earning actions and whether they can be earned now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			defs := d.Ledger.Catalog().Actions()
			if jsonFlag {
				return printJSON(defs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPOINTS\tCADENCE\tCOOLDOWN\tAVAILABLE")
			for _, a := range defs {
				cooldown := "-"
				if a.Cooldown() > 0 {
					cooldown = a.Cooldown().String()
				}
				can, err := d.Progression.CanEarn(ctx, a.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					a.ID, a.DisplayName, a.BasePoints, a.Cadence, cooldown, yesNo(can))
			}
			return w.Flush()
		})
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
