package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/storage"
)

const chunkColumns = `c.id, c.conversation_id, c.order_index, c.text, c.author_name, c.author_type, c.timestamp, c.embedding`

// SaveConversation stores a conversation and its chunks in one transaction.
func (s *Store) SaveConversation(ctx context.Context, conv *core.Conversation, chunks []core.Chunk) (core.ID, error) {
	if conv == nil {
		return 0, fmt.Errorf("%w: conversation is nil", core.ErrValidation)
	}
	if err := core.ValidateChunks(chunks); err != nil {
		return 0, err
	}
	for i := range chunks {
		if chunks[i].HasEmbedding() {
			if err := s.checkDimension(chunks[i].Embedding); err != nil {
				return 0, err
			}
		}
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	id, createdAt, stored, err := s.saveTx(ctx, conv, chunks, now)
	if err != nil {
		return 0, storage.Wrap("save conversation", err)
	}

	conv.ID = id
	conv.CreatedAt = createdAt
	conv.UpdatedAt = now
	copy(chunks, stored)

	s.logger.Debug("saved conversation", "conversation_id", id, "chunks", len(chunks))
	return id, nil
}

func (s *Store) saveTx(ctx context.Context, conv *core.Conversation, chunks []core.Chunk, now time.Time) (core.ID, time.Time, []core.Chunk, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, time.Time{}, nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var id int64
	createdAt := now
	if conv.ID == 0 {
		err := tx.QueryRow(ctx, `
			INSERT INTO conversations (title, source_url, original_title, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			RETURNING id
		`, conv.Title, conv.SourceURL, conv.OriginalTitle, now).Scan(&id)
		if err != nil {
			return 0, time.Time{}, nil, err
		}
	} else {
		id = int64(conv.ID)
		// Row lock serializes concurrent upserts of the same conversation.
		err := tx.QueryRow(ctx, `SELECT created_at FROM conversations WHERE id = $1 FOR UPDATE`, id).Scan(&createdAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, time.Time{}, nil, fmt.Errorf("%w: id %d", storage.ErrConversationNotFound, id)
		}
		if err != nil {
			return 0, time.Time{}, nil, err
		}
		createdAt = createdAt.UTC()

		if _, err := tx.Exec(ctx, `
			UPDATE conversations SET title = $1, source_url = $2, original_title = $3, updated_at = $4
			WHERE id = $5
		`, conv.Title, conv.SourceURL, conv.OriginalTitle, now, id); err != nil {
			return 0, time.Time{}, nil, err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE conversation_id = $1`, id); err != nil {
			return 0, time.Time{}, nil, err
		}
	}

	stored := make([]core.Chunk, len(chunks))
	if len(chunks) > 0 {
		batch := &pgx.Batch{}
		for i := range chunks {
			chunk := chunks[i]
			chunk.ConversationID = core.ID(id)
			chunk.Timestamp = chunk.Timestamp.UTC().Truncate(time.Microsecond)
			stored[i] = chunk
			batch.Queue(`
				INSERT INTO chunks (conversation_id, order_index, text, author_name, author_type, timestamp, embedding)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id
			`, id, chunk.OrderIndex, chunk.Text, chunk.AuthorName, int16(chunk.AuthorType), chunk.Timestamp, vectorArg(chunk.Embedding))
		}

		results := tx.SendBatch(ctx, batch)
		for i := range stored {
			var chunkID int64
			if err := results.QueryRow().Scan(&chunkID); err != nil {
				results.Close()
				return 0, time.Time{}, nil, err
			}
			stored[i].ID = core.ID(chunkID)
		}
		if err := results.Close(); err != nil {
			return 0, time.Time{}, nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, time.Time{}, nil, err
	}
	return core.ID(id), createdAt, stored, nil
}

// GetConversation retrieves a conversation with its chunks in order.
// Both reads share one repeatable-read snapshot.
func (s *Store) GetConversation(ctx context.Context, id core.ID) (*core.Conversation, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, storage.Wrap("get conversation", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		conv   core.Conversation
		convID int64
	)
	err = tx.QueryRow(ctx, `
		SELECT id, title, source_url, original_title, created_at, updated_at
		FROM conversations WHERE id = $1
	`, int64(id)).Scan(&convID, &conv.Title, &conv.SourceURL, &conv.OriginalTitle, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", storage.ErrConversationNotFound, id)
	}
	if err != nil {
		return nil, storage.Wrap("get conversation", err)
	}
	conv.ID = core.ID(convID)
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()

	rows, err := tx.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks c
		WHERE c.conversation_id = $1
		ORDER BY c.order_index
	`, int64(id))
	if err != nil {
		return nil, storage.Wrap("get conversation", err)
	}
	defer rows.Close()

	conv.Chunks = []core.Chunk{}
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, storage.Wrap("get conversation", err)
		}
		conv.Chunks = append(conv.Chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("get conversation", err)
	}
	return &conv, nil
}

// ListConversations returns conversations without chunks, newest first.
func (s *Store) ListConversations(ctx context.Context, offset, limit int) ([]*core.Conversation, error) {
	if err := storage.ValidatePage(offset, limit); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, source_url, original_title, created_at, updated_at
		FROM conversations
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, storage.Wrap("list conversations", err)
	}
	defer rows.Close()

	results := []*core.Conversation{}
	for rows.Next() {
		var (
			conv core.Conversation
			id   int64
		)
		if err := rows.Scan(&id, &conv.Title, &conv.SourceURL, &conv.OriginalTitle, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, storage.Wrap("list conversations", err)
		}
		conv.ID = core.ID(id)
		conv.CreatedAt = conv.CreatedAt.UTC()
		conv.UpdatedAt = conv.UpdatedAt.UTC()
		results = append(results, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("list conversations", err)
	}
	return results, nil
}

// DeleteConversation removes a conversation; chunks go with it through ON DELETE CASCADE.
func (s *Store) DeleteConversation(ctx context.Context, id core.ID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, int64(id))
	if err != nil {
		return storage.Wrap("delete conversation", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", storage.ErrConversationNotFound, id)
	}

	s.logger.Debug("deleted conversation", "conversation_id", id)
	return nil
}

// UpdateEmbeddings attaches embeddings to existing chunks atomically.
func (s *Store) UpdateEmbeddings(ctx context.Context, embeddings map[core.ID][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	for _, v := range embeddings {
		if err := s.checkDimension(v); err != nil {
			return err
		}
	}
	return storage.Wrap("update embeddings", s.updateEmbeddingsTx(ctx, embeddings))
}

func (s *Store) updateEmbeddingsTx(ctx context.Context, embeddings map[core.ID][]float32) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for id, vector := range embeddings {
		tag, err := tx.Exec(ctx, `UPDATE chunks SET embedding = $1 WHERE id = $2`, pgvector.NewVector(vector), int64(id))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: id %d", storage.ErrChunkNotFound, id)
		}
	}
	return tx.Commit(ctx)
}

// ForEachChunkBatch calls fn with batches of chunks in ascending chunk ID order.
func (s *Store) ForEachChunkBatch(ctx context.Context, afterID core.ID, batchSize int, fn func([]core.Chunk) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size %d", storage.ErrInvalidQuery, batchSize)
	}

	for {
		batch, err := s.readChunkBatch(ctx, afterID, batchSize)
		if err != nil {
			return storage.Wrap("iterate chunks", err)
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		afterID = batch[len(batch)-1].ID
	}
}

func (s *Store) readChunkBatch(ctx context.Context, afterID core.ID, batchSize int) ([]core.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks c
		WHERE c.id > $1
		ORDER BY c.id
		LIMIT $2
	`, int64(afterID), batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batch := make([]core.Chunk, 0, batchSize)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		batch = append(batch, *chunk)
	}
	return batch, rows.Err()
}

// scanChunk reads the columns listed in chunkColumns, plus any extra destinations.
func scanChunk(row pgx.Row, extra ...any) (*core.Chunk, error) {
	var (
		chunk      core.Chunk
		id, convID int64
		authorType int16
		embedding  *pgvector.Vector
	)
	dest := []any{&id, &convID, &chunk.OrderIndex, &chunk.Text, &chunk.AuthorName, &authorType, &chunk.Timestamp, &embedding}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	chunk.ID = core.ID(id)
	chunk.ConversationID = core.ID(convID)
	chunk.AuthorType = core.AuthorType(authorType)
	chunk.Timestamp = chunk.Timestamp.UTC()
	if embedding != nil {
		chunk.Embedding = embedding.Slice()
	}
	return &chunk, nil
}
