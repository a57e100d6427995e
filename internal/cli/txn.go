package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/biszaal/expenzez-sub007/internal/daemon"
	"github.com/biszaal/expenzez-sub007/internal/domain"
)

func init() {
	txnAddCmd.Flags().StringVar(&txnDate, "date", "", "Transaction date YYYY-MM-DD (default today)")
	txnCmd.AddCommand(txnAddCmd)
	txnCmd.AddCommand(txnListCmd)
	rootCmd.AddCommand(txnCmd)
}

var txnDate string

var txnCmd = &cobra.Command{
	Use:   "txn",
	Short: "Manage the local transaction ledger",
}

var txnAddCmd = &cobra.Command{
	Use:   "add AMOUNT CATEGORY",
	Short: "Record a transaction (negative = expense) and award points for it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[0], err)
		}
		date, err := parseTxnDate(txnDate, time.Now())
		if err != nil {
			return err
		}

		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			if d.Config.User.ID == "" {
				return fmt.Errorf("sign in to record transactions")
			}
			tx, err := d.DB.AddTransaction(ctx, domain.Transaction{
				UserID:   d.Config.User.ID,
				Date:     date,
				Amount:   amount,
				Category: args[1],
			})
			if err != nil {
				return err
			}
			fmt.Printf("Recorded %s %.2f %s (%s)\n", tx.Date.Format("2006-01-02"), tx.Amount, tx.Category, tx.ID)

			res, err := d.Progression.Award(ctx, actionForAmount(amount))
			if err != nil {
				return err
			}
			if res.Message != "" {
				fmt.Println(res.Message)
			}

			ev := d.Progression.EvaluateAchievements(ctx)
			for _, a := range ev.NewlyEarned {
				fmt.Printf("Unlocked: %s (+%d)\n", a.Title, a.PointsReward)
			}
			return nil
		})
	},
}

var txnListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded transactions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			txs, err := d.DB.Transactions(ctx, d.Config.User.ID)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(txs)
			}
			if len(txs) == 0 {
				fmt.Println("No transactions. Run 'expenzez txn add <amount> <category>' to record one.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tAMOUNT\tCATEGORY\tID")
			for _, tx := range txs {
				fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\n", tx.Date.Format("2006-01-02"), tx.Amount, tx.Category, tx.ID)
			}
			return w.Flush()
		})
	},
}

// actionForAmount maps a transaction onto its catalog action.
func actionForAmount(amount float64) string {
	if amount >= 0 {
		return "add-income"
	}
	return "add-expense"
}

// parseTxnDate reads YYYY-MM-DD in local time; empty means now.
func parseTxnDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", s)
	}
	return t.Add(12 * time.Hour), nil
}
