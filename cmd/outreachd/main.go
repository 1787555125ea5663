// Package main implements the outreachd CLI: decision analysis, draft
// dispatch, log ingestion, and the HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalworks/outreachd/internal/config"
	"github.com/signalworks/outreachd/internal/logging"
	"github.com/signalworks/outreachd/internal/store"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "outreachd",
	Short: "Decision engine and draft lifecycle manager for outbound email",
	Long: `outreachd turns raw behavioral logs into classified outreach decisions,
persists them as lifecycle records, and drives external draft creation.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
}

// setup loads config and builds the shared logger. Every subcommand
// starts here.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openStore(cfg *config.Config, logger *zap.Logger) (*store.Store, error) {
	st, err := store.Open(store.Config{
		Path:     cfg.Store.Path,
		PoolSize: cfg.Store.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", cfg.Store.Path, err)
	}
	return st, nil
}
