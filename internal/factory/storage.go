package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mindmark/mindmark-server/internal/config"
	storepkg "github.com/mindmark/mindmark-server/internal/store"
	storepg "github.com/mindmark/mindmark-server/internal/store/postgres"
	storesqlite "github.com/mindmark/mindmark-server/internal/store/sqlite"
)

// NewStore returns the relational store selected by config. The sqlite
// driver migrates on open; postgres bootstraps its schema synchronously so a
// bad DSN fails startup instead of the first request.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storepkg.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		st, err := storesqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite store ready")
		return st, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("MINDMARK_POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
		db, err := storepg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := storepg.Bootstrap(ctx, db); err != nil {
			return nil, fmt.Errorf("bootstrap postgres schema: %w", err)
		}
		log.Info().Msg("postgres store ready")
		return storepg.NewWithDB(db), nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}
