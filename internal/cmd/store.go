package cmd

import (
	"context"
	"fmt"

	"github.com/ledgersweep/ledgersweep/internal/config"
	"github.com/ledgersweep/ledgersweep/internal/core/store"
)

func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := loadedConfig()
	if err != nil {
		if cfg, err = config.LoadFile(ctx, cfgFile); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	return openStoreWith(ctx, cfg.Store)
}

func openStoreWith(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
