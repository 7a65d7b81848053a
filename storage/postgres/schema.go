package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// schemaVersion is bumped whenever schemaSQL changes shape.
const schemaVersion = 1

// schemaSQL is formatted with the embedding dimension.
const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    dimension  INTEGER NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversations (
    id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    title          TEXT NOT NULL,
    source_url     TEXT NOT NULL DEFAULT '',
    original_title TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_created
    ON conversations (created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS chunks (
    id              BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    conversation_id BIGINT NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
    order_index     INTEGER NOT NULL,
    text            TEXT NOT NULL,
    author_name     TEXT NOT NULL,
    author_type     SMALLINT NOT NULL,
    timestamp       TIMESTAMPTZ NOT NULL,
    embedding       vector(%d),
    UNIQUE (conversation_id, order_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_embedding
    ON chunks USING hnsw (embedding vector_l2_ops);

CREATE TABLE IF NOT EXISTS checkpoints (
    name       TEXT PRIMARY KEY,
    last_id    BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
`

// migrate creates the schema on a dedicated connection. It runs before the pool
// exists because the pool registers the vector type on connect.
func migrate(ctx context.Context, dsn string, dimension int) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf(schemaSQL, dimension)); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	var stored int
	err = tx.QueryRow(ctx, `SELECT dimension FROM schema_migrations WHERE version = $1`, schemaVersion).Scan(&stored)
	switch {
	case err == pgx.ErrNoRows:
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, dimension) VALUES ($1, $2)`, schemaVersion, dimension); err != nil {
			return err
		}
	case err != nil:
		return err
	case stored != dimension:
		return fmt.Errorf("database was created for dimension %d, configured %d", stored, dimension)
	}

	return tx.Commit(ctx)
}
