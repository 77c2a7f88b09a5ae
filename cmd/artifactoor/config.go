package main

import (
	"context"
	"fmt"

	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/ethpandaops/artifactoor/pkg/ledger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// loadConfig loads the merged configuration and checks it with validate.
// The config log level applies unless --log-level was given explicitly.
func loadConfig(cmd *cobra.Command, validate func(*config.Config) error) (*config.Config, error) {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if !cmd.Flags().Changed("log-level") {
		level, err := logrus.ParseLevel(cfg.Global.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid global.log_level %q: %w", cfg.Global.LogLevel, err)
		}

		log.SetLevel(level)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// openLedger starts the ledger store when enabled. The returned store is
// nil when the ledger is disabled.
func openLedger(ctx context.Context, cfg *config.Config) (ledger.Store, error) {
	if !cfg.Ledger.Enabled {
		return nil, nil
	}

	store := ledger.NewStore(log, &cfg.Ledger.Database)
	if err := store.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting ledger: %w", err)
	}

	return store, nil
}

func stopLedger(store ledger.Store) {
	if store == nil {
		return
	}

	if err := store.Stop(); err != nil {
		log.WithError(err).Warn("Failed to close ledger")
	}
}
