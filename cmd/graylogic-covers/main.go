// Gray Logic Shutters - window cover decision engine
//
// This is the main entry point for the graylogic-covers service. It runs a
// decision engine per configured cover that opens, closes, shades and
// protects windows based on schedules, sun, weather and occupancy, and talks
// to the rest of the building over the MQTT state bus.
//
// Commands:
//   - serve: run the engines, state bus bridge and HTTP API (default)
//   - check: validate the configuration and entries file
//   - token: mint an API token for a panel or integration
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the command tree. Running the binary without a
// subcommand serves.
func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "graylogic-covers",
		Short: "Gray Logic window cover decision engine",
		Long: `graylogic-covers decides where every window cover should be.

Each cover runs an ordered rule cascade (wind and frost protection,
manual overrides, ventilation, shading, schedules) and commands the
cover over the MQTT state bus. An HTTP API exposes cover state,
overrides, recalibration and decision history.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file path (default $GRAYLOGIC_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newCheckCommand(&configPath))
	root.AddCommand(newTokenCommand(&configPath))

	return root
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the decision engines and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(*configPath))
		},
	}
}

// resolveConfigPath returns the configuration file path.
// The --config flag wins, then GRAYLOGIC_CONFIG, then the default.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
