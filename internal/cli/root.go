// Package cli implements the expenzez command-line interface using Cobra.
// Each subcommand maps to one progression capability (award, progress,
// achievements, streak, etc.).
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/biszaal/expenzez-sub007/internal/daemon"
)

var (
	userFlag string
	jsonFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "expenzez",
	Short: "Streaks, achievements and levels for your spending",
	Long: `expenzez turns financial activity into streaks, achievements, points
and levels. Progress is kept locally and synced to the progression service
when one is configured.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "User id (overrides [user] id in config)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print results as JSON")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openDaemon loads config, applies the global flags and wires the runtime.
func openDaemon(ctx context.Context) (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if userFlag != "" {
		cfg.User.ID = userFlag
	}
	return daemon.NewWithConfig(ctx, cfg)
}

// withDaemon runs fn against a wired daemon with the push worker running,
// then gives pending pushes a bounded chance to reach the remote.
func withDaemon(cmd *cobra.Command, fn func(ctx context.Context, d *daemon.Daemon) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	d.Start(ctx)

	if d.Config.User.ID == "" {
		fmt.Fprintln(os.Stderr, "Not signed in. Set [user] id in config or pass --user.")
	}

	if err := fn(ctx, d); err != nil {
		return err
	}
	if n := d.Drain(ctx); n > 0 {
		fmt.Fprintf(os.Stderr, "%d progression update(s) not synced yet; they will be pushed on the next run\n", n)
	}
	return nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
