package threadbase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/threadbase/config"
	"github.com/poiesic/threadbase/storage"
	"github.com/poiesic/threadbase/storage/badger"
	"github.com/poiesic/threadbase/storage/postgres"
	"github.com/poiesic/threadbase/storage/sqlite"
)

// openRepository opens the store selected by cfg.Storage.
func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Repository, error) {
	s := cfg.Storage
	switch s.Backend {
	case config.BackendBadger:
		opts := []badger.Option{badger.WithLogger(logger)}
		if s.Path == config.MemoryPath {
			opts = append(opts, badger.WithInMemory())
		}
		return badger.NewRepository(s.Path, opts...)
	case config.BackendSQLite:
		return sqlite.NewRepository(s.Path, sqlite.WithLogger(logger))
	case config.BackendPostgres:
		return postgres.NewRepository(ctx, s.DSN, cfg.Embedding.Dimension, postgres.WithLogger(logger))
	}
	return nil, fmt.Errorf("%w: unknown storage backend %q", config.ErrInvalidConfig, s.Backend)
}
