package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var (
		port          = envOr("PORT", "8080")
		configPath    = envOr("CONFIG_PATH", "config/config.yaml")
		sweepInterval string
	)

	cmd := &cobra.Command{
		Use:   "battle-service",
		Short: "Server-authoritative coordinator for real-time quiz battles",
		Long: `battle-service hosts multiplayer quiz battle rooms: invite-token joins,
host-controlled settings, countdown and per-question deadlines, speed-based
scoring and reward settlement. Clients connect over the /ws endpoint.`,
	}

	cmd.PersistentFlags().StringVar(&port, "port", port, "port to listen on")
	cmd.PersistentFlags().StringVar(&configPath, "config", configPath, "path to YAML config")
	cmd.PersistentFlags().StringVar(&sweepInterval, "sweep-interval", "", "room GC sweep interval override (e.g. 30s)")
	cmd.AddCommand(NewStartCmd(&configPath, &port, &sweepInterval))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
