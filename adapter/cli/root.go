// Package cli implements the operator command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/akazakov/tollgate/internal/app"
	"github.com/akazakov/tollgate/pkg/config"
	"github.com/akazakov/tollgate/pkg/observability"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "tollgate",
	Short: "Paid channel access engine",
	Long: `Tollgate reconciles payment processor events with subscription state
and controls membership of a paid Telegram channel.

The webhook and worker binaries run the engine; this CLI is for operators:
inspecting state, moving the promotional window, backfilling expiry dates
and purging test environments.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.AddCommand(adminCmd)
}

// newContainer builds the dependency graph for one command invocation.
func newContainer(ctx context.Context) (*app.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	// The CLI never needs the bot; admin commands work on the store alone.
	cfg.BotToken = ""

	level := observability.LogLevel("warn")
	if verbose {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       level,
		ServiceName: "tollgate-cli",
	})

	return app.NewContainer(ctx, cfg, logger)
}
