package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/storage"
)

// ErrInvalidDimension indicates a non-positive embedding dimension.
var ErrInvalidDimension = fmt.Errorf("%w: dimension must be positive", core.ErrValidation)

// Store implements storage.Repository on PostgreSQL + pgvector.
type Store struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *slog.Logger
}

var _ storage.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. A nil logger uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRepository connects to dsn, creates the schema for the given embedding
// dimension and returns a pooled repository.
func NewRepository(ctx context.Context, dsn string, dimension int, opts ...Option) (storage.Repository, error) {
	return newStore(ctx, dsn, dimension, opts...)
}

func newStore(ctx context.Context, dsn string, dimension int, opts ...Option) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDimension, dimension)
	}

	if err := migrate(ctx, dsn, dimension); err != nil {
		return nil, storage.Wrap("migrate postgres", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, storage.Wrap("parse postgres dsn", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storage.Wrap("open postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Wrap("ping postgres", err)
	}

	s := &Store{
		pool:      pool,
		dimension: dimension,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "storage", "backend", "postgres")
	return s, nil
}

// Close closes every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Dimension returns the embedding dimension the schema was created with.
func (s *Store) Dimension() int {
	return s.dimension
}

// checkDimension rejects vectors that do not fit the vector(D) column.
func (s *Store) checkDimension(v []float32) error {
	if len(v) != s.dimension {
		return fmt.Errorf("%w: got %d, want %d", storage.ErrDimensionMismatch, len(v), s.dimension)
	}
	return nil
}

// vectorArg converts an embedding into a query argument; no embedding is NULL.
func vectorArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

// SaveCheckpoint persists a named checkpoint.
func (s *Store) SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error {
	if checkpoint == nil || checkpoint.Name == "" {
		return fmt.Errorf("%w: checkpoint name is required", core.ErrValidation)
	}

	checkpoint.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkpoints (name, last_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			last_id = EXCLUDED.last_id,
			updated_at = EXCLUDED.updated_at
	`, checkpoint.Name, int64(checkpoint.LastID), checkpoint.UpdatedAt)
	return storage.Wrap("save checkpoint", err)
}

// LoadCheckpoint retrieves a checkpoint by name.
// Returns nil, nil if no checkpoint exists.
func (s *Store) LoadCheckpoint(ctx context.Context, name string) (*core.Checkpoint, error) {
	var (
		lastID  int64
		updated time.Time
	)
	err := s.pool.QueryRow(ctx, `SELECT last_id, updated_at FROM checkpoints WHERE name = $1`, name).Scan(&lastID, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Wrap("load checkpoint", err)
	}
	return &core.Checkpoint{Name: name, LastID: core.ID(lastID), UpdatedAt: updated.UTC()}, nil
}
