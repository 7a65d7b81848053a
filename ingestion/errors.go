package ingestion

import (
	"errors"
	"fmt"

	"github.com/poiesic/threadbase/core"
)

var (
	// ErrRepositoryRequired is returned when a conversation repository is not provided.
	ErrRepositoryRequired = errors.New("conversation repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrNilRequest is returned when Ingest is called without a request.
	ErrNilRequest = fmt.Errorf("%w: request is nil", core.ErrValidation)

	// ErrEmbeddingCount indicates the embedder returned a different number of vectors than chunks.
	ErrEmbeddingCount = fmt.Errorf("%w: embedding count does not match chunk count", core.ErrProvider)

	// ErrEmbeddingDimension indicates a vector whose length differs from the configured dimension.
	ErrEmbeddingDimension = fmt.Errorf("%w: embedding dimension does not match", core.ErrProvider)
)
