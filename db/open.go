package db

import (
	"context"
	"fmt"
	"log/slog"

	"debatesite/config"
)

// Open builds the record store selected by the database driver setting.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverMongo:
		return NewMongoStore(ctx, cfg.Database.URI, logger)
	case config.DriverSQLite:
		return OpenSQLStore(ctx, DialectSQLite, cfg.Database.URI)
	case config.DriverPostgres:
		return OpenSQLStore(ctx, DialectPostgres, cfg.Database.URI)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// Seed fills an empty topic collection with DefaultTopics.
func Seed(ctx context.Context, store Store, logger *slog.Logger) error {
	n, err := store.SeedTopics(ctx, DefaultTopics)
	if err != nil {
		return fmt.Errorf("seed topics: %w", err)
	}
	if n > 0 {
		logger.Info("seeded topics", "count", n)
	}
	return nil
}
