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

const chunkColumns = `c.id, c.conversation_id, c.order_index, c.text, c.author_name, c.author_type, c.timestamp, c.embedding`

// SaveConversation stores a conversation and its chunks in one transaction.
func (s *Store) SaveConversation(ctx context.Context, conv *core.Conversation, chunks []core.Chunk) (core.ID, error) {
	if conv == nil {
		return 0, fmt.Errorf("%w: conversation is nil", core.ErrValidation)
	}
	if err := core.ValidateChunks(chunks); err != nil {
		return 0, err
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, time.Time{}, nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	id := conv.ID
	createdAt := now
	if id == 0 {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (title, source_url, original_title, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, conv.Title, conv.SourceURL, conv.OriginalTitle, toMicros(now), toMicros(now))
		if err != nil {
			return 0, time.Time{}, nil, err
		}
		lastID, err := res.LastInsertId()
		if err != nil {
			return 0, time.Time{}, nil, err
		}
		id = core.ID(lastID)
	} else {
		var created int64
		err := tx.QueryRowContext(ctx, `SELECT created_at FROM conversations WHERE id = ?`, int64(id)).Scan(&created)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, time.Time{}, nil, fmt.Errorf("%w: id %d", storage.ErrConversationNotFound, id)
		}
		if err != nil {
			return 0, time.Time{}, nil, err
		}
		createdAt = fromMicros(created)

		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET title = ?, source_url = ?, original_title = ?, updated_at = ?
			WHERE id = ?
		`, conv.Title, conv.SourceURL, conv.OriginalTitle, toMicros(now), int64(id)); err != nil {
			return 0, time.Time{}, nil, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE conversation_id = ?`, int64(id)); err != nil {
			return 0, time.Time{}, nil, err
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (conversation_id, order_index, text, author_name, author_type, timestamp, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, time.Time{}, nil, err
	}
	defer stmt.Close()

	stored := make([]core.Chunk, len(chunks))
	for i := range chunks {
		chunk := chunks[i]
		chunk.ConversationID = id
		chunk.Timestamp = chunk.Timestamp.UTC().Truncate(time.Microsecond)

		res, err := stmt.ExecContext(ctx, int64(id), chunk.OrderIndex, chunk.Text, chunk.AuthorName,
			int(chunk.AuthorType), toMicros(chunk.Timestamp), storage.EncodeVector(chunk.Embedding))
		if err != nil {
			return 0, time.Time{}, nil, err
		}
		chunkID, err := res.LastInsertId()
		if err != nil {
			return 0, time.Time{}, nil, err
		}
		chunk.ID = core.ID(chunkID)
		stored[i] = chunk
	}

	if err := tx.Commit(); err != nil {
		return 0, time.Time{}, nil, err
	}
	return id, createdAt, stored, nil
}

// GetConversation retrieves a conversation with its chunks in order.
// A single joined query keeps the conversation and its chunks consistent.
func (s *Store) GetConversation(ctx context.Context, id core.ID) (*core.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.title, v.source_url, v.original_title, v.created_at, v.updated_at,
			c.id, c.conversation_id, c.order_index, c.text, c.author_name, c.author_type, c.timestamp, c.embedding
		FROM conversations v
		LEFT JOIN chunks c ON c.conversation_id = v.id
		WHERE v.id = ?
		ORDER BY c.order_index
	`, int64(id))
	if err != nil {
		return nil, storage.Wrap("get conversation", err)
	}
	defer rows.Close()

	var conv *core.Conversation
	for rows.Next() {
		var (
			v                    core.Conversation
			created, updated     int64
			chunkID, chunkConvID sql.NullInt64
			orderIndex           sql.NullInt64
			text, authorName     sql.NullString
			authorType, ts       sql.NullInt64
			embedding            []byte
		)
		if err := rows.Scan(&v.ID, &v.Title, &v.SourceURL, &v.OriginalTitle, &created, &updated,
			&chunkID, &chunkConvID, &orderIndex, &text, &authorName, &authorType, &ts, &embedding); err != nil {
			return nil, storage.Wrap("get conversation", err)
		}
		if conv == nil {
			v.CreatedAt = fromMicros(created)
			v.UpdatedAt = fromMicros(updated)
			v.Chunks = []core.Chunk{}
			conv = &v
		}
		if !chunkID.Valid {
			continue
		}

		vector, err := storage.DecodeVector(embedding)
		if err != nil {
			return nil, storage.Wrap("get conversation", err)
		}
		conv.Chunks = append(conv.Chunks, core.Chunk{
			ID:             core.ID(chunkID.Int64),
			ConversationID: core.ID(chunkConvID.Int64),
			OrderIndex:     int(orderIndex.Int64),
			Text:           text.String,
			AuthorName:     authorName.String,
			AuthorType:     core.AuthorType(authorType.Int64),
			Timestamp:      fromMicros(ts.Int64),
			Embedding:      vector,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("get conversation", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: id %d", storage.ErrConversationNotFound, id)
	}
	return conv, nil
}

// ListConversations returns conversations without chunks, newest first.
func (s *Store) ListConversations(ctx context.Context, offset, limit int) ([]*core.Conversation, error) {
	if err := storage.ValidatePage(offset, limit); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, source_url, original_title, created_at, updated_at
		FROM conversations
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, storage.Wrap("list conversations", err)
	}
	defer rows.Close()

	results := []*core.Conversation{}
	for rows.Next() {
		var conv core.Conversation
		var created, updated int64
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.SourceURL, &conv.OriginalTitle, &created, &updated); err != nil {
			return nil, storage.Wrap("list conversations", err)
		}
		conv.CreatedAt = fromMicros(created)
		conv.UpdatedAt = fromMicros(updated)
		results = append(results, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("list conversations", err)
	}
	return results, nil
}

// DeleteConversation removes a conversation; chunks go with it through ON DELETE CASCADE.
func (s *Store) DeleteConversation(ctx context.Context, id core.ID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, int64(id))
	if err != nil {
		return storage.Wrap("delete conversation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Wrap("delete conversation", err)
	}
	if n == 0 {
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
	return storage.Wrap("update embeddings", s.updateEmbeddingsTx(ctx, embeddings))
}

func (s *Store) updateEmbeddingsTx(ctx context.Context, embeddings map[core.ID][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `UPDATE chunks SET embedding = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, vector := range embeddings {
		res, err := stmt.ExecContext(ctx, storage.EncodeVector(vector), int64(id))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: id %d", storage.ErrChunkNotFound, id)
		}
	}
	return tx.Commit()
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks c
		WHERE c.id > ?
		ORDER BY c.id
		LIMIT ?
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

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanChunk reads the columns listed in chunkColumns, plus any extra destinations.
func scanChunk(row scanner, extra ...any) (*core.Chunk, error) {
	var (
		chunk      core.Chunk
		authorType int
		ts         int64
		embedding  []byte
	)
	dest := []any{&chunk.ID, &chunk.ConversationID, &chunk.OrderIndex, &chunk.Text,
		&chunk.AuthorName, &authorType, &ts, &embedding}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	vector, err := storage.DecodeVector(embedding)
	if err != nil {
		return nil, err
	}
	chunk.AuthorType = core.AuthorType(authorType)
	chunk.Timestamp = fromMicros(ts)
	chunk.Embedding = vector
	return &chunk, nil
}
