package storage

import (
	"context"

	"github.com/poiesic/threadbase/core"
)

// ConversationRepository persists conversations with their chunks and answers
// nearest-neighbor queries over chunk embeddings.
// Implementations must be thread-safe and support concurrent access.
type ConversationRepository interface {
	// SaveConversation stores a conversation and its chunks in one transaction.
	// A zero conv.ID inserts a new conversation; a non-zero ID replaces the stored
	// conversation and all of its previous chunks, keeping the original CreatedAt.
	// Chunk IDs are assigned by the store and chunks are written back with their IDs
	// and conversation ID populated. Returns the conversation ID.
	SaveConversation(ctx context.Context, conv *core.Conversation, chunks []core.Chunk) (core.ID, error)

	// GetConversation retrieves a conversation with its chunks ordered by OrderIndex.
	// Returns an error matching core.ErrNotFound if the conversation doesn't exist.
	GetConversation(ctx context.Context, id core.ID) (*core.Conversation, error)

	// ListConversations returns conversations without chunks, newest first.
	// Ties on CreatedAt are ordered by ID descending.
	ListConversations(ctx context.Context, offset, limit int) ([]*core.Conversation, error)

	// DeleteConversation removes a conversation and all of its chunks.
	// Returns an error matching core.ErrNotFound if the conversation doesn't exist.
	DeleteConversation(ctx context.Context, id core.ID) error

	// SimilaritySearch returns up to topK embedded chunks nearest to query by L2 distance.
	// Results with a relevance score below minRelevance are dropped; zero disables the filter.
	// Ordering is by distance, then OrderIndex, then ConversationID, then chunk ID.
	SimilaritySearch(ctx context.Context, query []float32, topK int, minRelevance float32) ([]*core.ScoredChunk, error)

	// UpdateEmbeddings attaches embeddings to existing chunks atomically.
	// Returns an error matching core.ErrNotFound, and writes nothing, if any chunk is unknown.
	UpdateEmbeddings(ctx context.Context, embeddings map[core.ID][]float32) error

	// ForEachChunkBatch calls fn with batches of chunks in ascending chunk ID order,
	// starting after afterID. Iteration stops at the first error returned by fn.
	ForEachChunkBatch(ctx context.Context, afterID core.ID, batchSize int, fn func([]core.Chunk) error) error

	// Close releases resources held by the repository.
	Close() error
}

// CheckpointRepository stores named progress markers for long-running jobs.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint, setting its UpdatedAt.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves a checkpoint by name.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, name string) (*core.Checkpoint, error)
}

// Repository combines every storage operation; each backend implements it over one database.
type Repository interface {
	ConversationRepository
	CheckpointRepository
}
