package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/coachmate/coachmate-api/internal/config"
	"github.com/coachmate/coachmate-api/internal/platform/logger"
)

var rootCmd = &cobra.Command{
	Use:   "testdbctl",
	Short: "Manage isolated PostgreSQL test databases",
	Long: `testdbctl runs and inspects the test database provisioner.

The provisioner hands each test suite its own PostgreSQL database,
migrated and optionally seeded, and drops it when the suite finishes.
Harnesses written in Go embed the manager directly; serve hosts the
same manager behind an HTTP ops API for everything else. The orphans
commands talk straight to the database server and sweep databases
left behind by crashed runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and installs the process-wide logger. Every
// subcommand goes through here so the two stay consistent.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	return cfg, log, nil
}
