// Package main is the entry point for ShellyManager.
//
// ShellyManager collects quarter-hourly energy readings from Shelly and
// Modbus meters and stores them in SQLite, optionally mirroring them to
// InfluxDB, VictoriaMetrics, MQTT and Kafka.
//
// Usage:
//
//	shellymanager serve  --config /path/to/config.yaml
//	shellymanager fetch
//	shellymanager next
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Build-time variables (set via ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration path.
const defaultConfigPath = "configs/config.yaml"

// defaultEnvFile is loaded before the config when present.
const defaultEnvFile = ".env"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: stop() called explicitly above
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "shellymanager",
		Short:         "Quarter-hourly energy meter collection",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadEnvFile(flags.envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", getConfigPath(), "path to config.yaml (env SHELLYMANAGER_CONFIG)")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", defaultEnvFile, "dotenv file loaded before the config, ignored when missing")

	cmd.AddCommand(
		newServeCmd(flags),
		newFetchCmd(flags),
		newNextCmd(),
		newMigrateCmd(flags),
		newMetersCmd(flags),
		newStatusCmd(flags),
		newCyclesCmd(flags),
		newReadingsCmd(flags),
	)
	return cmd
}

// getConfigPath returns the config file path from environment or default.
func getConfigPath() string {
	if path := os.Getenv("SHELLYMANAGER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}
