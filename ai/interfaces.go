package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// An empty input returns an empty result without contacting the provider.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorCache stores embeddings by key. Implementations live in ai/cache.
type VectorCache interface {
	// GetMany returns one entry per key, nil for misses.
	GetMany(ctx context.Context, keys []string) ([][]float32, error)

	// SetMany stores vectors under the matching keys.
	SetMany(ctx context.Context, keys []string, vectors [][]float32) error

	Close() error
}
