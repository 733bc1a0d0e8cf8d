// Tracker Core - device fleet backend.
//
// trackercore owns the device pool, the assignment and approval workflow,
// geofence links, site configuration and firmware rollout for a fleet of
// GPS trackers. Every entity is read through a cache-aside store.
//
// Commands:
//
//	serve          run the core with MQTT, InfluxDB, metrics and reconciliation
//	migrate        apply, roll back or list schema migrations
//	sync-config    insert declared site settings missing from the store
//	reconcile      run one repair pass and print the report
//	provision      create new device pool entries
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/tracker-core/migrations"

	"github.com/nerrad567/tracker-core/internal/infrastructure/config"
	"github.com/nerrad567/tracker-core/internal/infrastructure/logging"
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
	// Cancel on Ctrl+C or SIGTERM so every command shuts down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state out of package globals.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "trackercore",
		Short:         "Tracker Core device fleet backend",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to the YAML config (default $TRACKER_CONFIG or "+defaultConfigPath+")")

	env := func() (*config.Config, *logging.Logger, error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, nil, err
		}
		return cfg, logging.New(cfg.Logging, version), nil
	}

	root.AddCommand(
		newServeCmd(env),
		newMigrateCmd(env),
		newSyncConfigCmd(env),
		newReconcileCmd(env),
		newProvisionCmd(env),
		newUserLimitsCmd(env),
	)
	return root
}

// envFunc loads configuration and the logger for a command.
type envFunc func() (*config.Config, *logging.Logger, error)

// loadConfig resolves the config file from the flag, then TRACKER_CONFIG,
// then the default path. Built-in defaults are used only when no path was
// given and the default file does not exist.
func loadConfig(flagPath string) (*config.Config, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv("TRACKER_CONFIG")
	}
	if path != "" {
		return config.Load(path)
	}

	if _, err := os.Stat(defaultConfigPath); errors.Is(err, fs.ErrNotExist) {
		return config.Default()
	}
	return config.Load(defaultConfigPath)
}
