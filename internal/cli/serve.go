package cli

import (
	"github.com/spf13/cobra"

	"github.com/biszaal/expenzez-sub007/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveBackend, "backend", "", "Record backend: sqlite or postgres (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost    string
	servePort    int
	serveBackend string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the progression service",
	Long: `Start the authoritative progression HTTP service.
Clients hydrate from GET and push to PUT /v1/users/{id}/progression.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveBackend != "" {
		cfg.Server.Backend = serveBackend
	}

	d, err := daemon.NewWithConfig(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Serve(cmd.Context())
}
