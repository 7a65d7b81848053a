package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/storage"
)

// SaveCheckpoint persists a named checkpoint.
func (s *Store) SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error {
	if checkpoint == nil || checkpoint.Name == "" {
		return fmt.Errorf("%w: checkpoint name is required", core.ErrValidation)
	}

	checkpoint.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (name, last_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			last_id = excluded.last_id,
			updated_at = excluded.updated_at
	`, checkpoint.Name, int64(checkpoint.LastID), toMicros(checkpoint.UpdatedAt))
	return storage.Wrap("save checkpoint", err)
}

// LoadCheckpoint retrieves a checkpoint by name.
// Returns nil, nil if no checkpoint exists.
func (s *Store) LoadCheckpoint(ctx context.Context, name string) (*core.Checkpoint, error) {
	var (
		lastID  int64
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT last_id, updated_at FROM checkpoints WHERE name = ?`, name).Scan(&lastID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Wrap("load checkpoint", err)
	}
	return &core.Checkpoint{Name: name, LastID: core.ID(lastID), UpdatedAt: fromMicros(updated)}, nil
}
