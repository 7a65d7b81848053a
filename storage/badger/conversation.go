package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/storage"
)

// SaveConversation stores a conversation and its chunks in one transaction.
func (r *Repository) SaveConversation(ctx context.Context, conv *core.Conversation, chunks []core.Chunk) (core.ID, error) {
	if conv == nil {
		return 0, fmt.Errorf("%w: conversation is nil", core.ErrValidation)
	}
	if err := core.ValidateChunks(chunks); err != nil {
		return 0, err
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	record := *conv
	record.Chunks = nil
	stored := make([]core.Chunk, len(chunks))

	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		if record.ID == 0 {
			id, err := nextID(r.convSeq)
			if err != nil {
				return err
			}
			record.ID = core.ID(id)
			record.CreatedAt = now
			if err := tx.Set(makeConversationCreatedKey(&record), storage.MarshalID(record.ID)); err != nil {
				return err
			}
		} else {
			existing, err := r.readConversation(tx, record.ID)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("%w: id %d", storage.ErrConversationNotFound, record.ID)
			}
			// The creation index key stays valid because CreatedAt is kept.
			record.CreatedAt = existing.CreatedAt
			if err := r.deleteChunks(tx, record.ID); err != nil {
				return err
			}
		}
		record.UpdatedAt = now

		if err := tx.Set(makeConversationKey(record.ID), storage.MarshalConversation(&record)); err != nil {
			return err
		}

		for i := range chunks {
			id, err := nextID(r.chunkSeq)
			if err != nil {
				return err
			}
			chunk := chunks[i]
			chunk.ID = core.ID(id)
			chunk.ConversationID = record.ID
			chunk.Timestamp = chunk.Timestamp.UTC().Truncate(time.Microsecond)

			key := makeChunkKey(record.ID, chunk.OrderIndex)
			if err := tx.Set(key, storage.MarshalChunk(&chunk)); err != nil {
				return err
			}
			if err := tx.Set(makeChunkIDKey(chunk.ID), key); err != nil {
				return err
			}
			stored[i] = chunk
		}
		return nil
	}, true)
	if err != nil {
		return 0, storage.Wrap("save conversation", err)
	}

	conv.ID = record.ID
	conv.CreatedAt = record.CreatedAt
	conv.UpdatedAt = record.UpdatedAt
	copy(chunks, stored)

	r.logger.Debug("saved conversation", "conversation_id", record.ID, "chunks", len(chunks))
	return record.ID, nil
}

// GetConversation retrieves a conversation with its chunks in order.
func (r *Repository) GetConversation(ctx context.Context, id core.ID) (*core.Conversation, error) {
	var result *core.Conversation
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		conv, err := r.readConversation(tx, id)
		if err != nil {
			return err
		}
		if conv == nil {
			return fmt.Errorf("%w: id %d", storage.ErrConversationNotFound, id)
		}

		conv.Chunks, err = r.readChunks(tx, id)
		if err != nil {
			return err
		}
		result = conv
		return nil
	}, false)
	if err != nil {
		return nil, storage.Wrap("get conversation", err)
	}
	return result, nil
}

// ListConversations returns conversations without chunks, newest first.
func (r *Repository) ListConversations(ctx context.Context, offset, limit int) ([]*core.Conversation, error) {
	if err := storage.ValidatePage(offset, limit); err != nil {
		return nil, err
	}

	results := make([]*core.Conversation, 0, min(limit, 64))
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(conversationCreatedPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		skipped := 0
		for iter.Seek(seekLast(conversationCreatedPrefix)); iter.Valid() && len(results) < limit; iter.Next() {
			if skipped < offset {
				skipped++
				continue
			}

			var convID core.ID
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				convID, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				return err
			}

			conv, err := r.readConversation(tx, convID)
			if err != nil {
				return err
			}
			if conv != nil {
				results = append(results, conv)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, storage.Wrap("list conversations", err)
	}
	return results, nil
}

// DeleteConversation removes a conversation and all of its chunks.
func (r *Repository) DeleteConversation(ctx context.Context, id core.ID) error {
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		conv, err := r.readConversation(tx, id)
		if err != nil {
			return err
		}
		if conv == nil {
			return fmt.Errorf("%w: id %d", storage.ErrConversationNotFound, id)
		}

		if err := r.deleteChunks(tx, id); err != nil {
			return err
		}
		if err := tx.Delete(makeConversationCreatedKey(conv)); err != nil {
			return err
		}
		return tx.Delete(makeConversationKey(id))
	}, true)
	if err != nil {
		return storage.Wrap("delete conversation", err)
	}

	r.logger.Debug("deleted conversation", "conversation_id", id)
	return nil
}

// UpdateEmbeddings attaches embeddings to existing chunks atomically.
func (r *Repository) UpdateEmbeddings(ctx context.Context, embeddings map[core.ID][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}

	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for id, vector := range embeddings {
			item, err := tx.Get(makeChunkIDKey(id))
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: id %d", storage.ErrChunkNotFound, id)
			}
			if err != nil {
				return err
			}
			key, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			chunk, err := r.readChunk(tx, key)
			if err != nil {
				return err
			}
			if chunk == nil {
				return fmt.Errorf("%w: id %d", storage.ErrChunkNotFound, id)
			}

			chunk.Embedding = append([]float32(nil), vector...)
			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return nil
	}, true)
	return storage.Wrap("update embeddings", err)
}

// ForEachChunkBatch calls fn with batches of chunks in ascending chunk ID order.
// Each batch is read in its own transaction so fn may write to the repository.
func (r *Repository) ForEachChunkBatch(ctx context.Context, afterID core.ID, batchSize int, fn func([]core.Chunk) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size %d", storage.ErrInvalidQuery, batchSize)
	}

	for {
		batch, err := r.readChunkBatch(ctx, afterID, batchSize)
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

func (r *Repository) readChunkBatch(ctx context.Context, afterID core.ID, batchSize int) ([]core.Chunk, error) {
	batch := make([]core.Chunk, 0, batchSize)
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkIDPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeChunkIDKey(afterID)); iter.Valid() && len(batch) < batchSize; iter.Next() {
			key, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			chunk, err := r.readChunk(tx, key)
			if err != nil {
				return err
			}
			// Seek lands on afterID itself when it still exists.
			if chunk == nil || chunk.ID <= afterID {
				continue
			}
			batch = append(batch, *chunk)
		}
		return nil
	}, false)
	return batch, err
}

// readConversation returns nil, nil when the conversation doesn't exist.
func (r *Repository) readConversation(tx *badger.Txn, id core.ID) (*core.Conversation, error) {
	item, err := tx.Get(makeConversationKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var conv *core.Conversation
	err = item.Value(func(val []byte) error {
		var err error
		conv, err = storage.UnmarshalConversation(val)
		return err
	})
	return conv, err
}

// readChunk returns nil, nil when no chunk is stored under key.
func (r *Repository) readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}

// readChunks loads a conversation's chunks in order index order.
func (r *Repository) readChunks(tx *badger.Txn, conversationID core.ID) ([]core.Chunk, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeConversationChunksPrefix(conversationID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	chunks := []core.Chunk{}
	for iter.Rewind(); iter.Valid(); iter.Next() {
		err := iter.Item().Value(func(val []byte) error {
			chunk, err := storage.UnmarshalChunk(val)
			if err != nil {
				return err
			}
			chunks = append(chunks, *chunk)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return chunks, nil
}

// deleteChunks removes every chunk of a conversation together with its locator.
func (r *Repository) deleteChunks(tx *badger.Txn, conversationID core.ID) error {
	var keys [][]byte
	var ids []core.ID

	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeConversationChunksPrefix(conversationID)
	iter := tx.NewIterator(opts)
	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		// The chunk ID is the first field of the record.
		err := item.Value(func(val []byte) error {
			id, _, err := core.IDMUS.Unmarshal(val)
			if err != nil {
				return err
			}
			ids = append(ids, id)
			return nil
		})
		if err != nil {
			iter.Close()
			return err
		}
		keys = append(keys, item.KeyCopy(nil))
	}
	iter.Close()

	for i, key := range keys {
		if err := tx.Delete(key); err != nil {
			return err
		}
		if err := tx.Delete(makeChunkIDKey(ids[i])); err != nil {
			return err
		}
	}
	return nil
}
