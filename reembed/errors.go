package reembed

import (
	"errors"
	"fmt"

	"github.com/poiesic/threadbase/core"
)

var (
	// ErrRepositoryRequired is returned when a repository is not provided.
	ErrRepositoryRequired = errors.New("repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidConfig is returned for a non-positive batch size or report interval.
	ErrInvalidConfig = fmt.Errorf("%w: invalid reembed configuration", core.ErrValidation)

	// ErrEmbeddingCount is returned when the embedder returns a different number of vectors than texts.
	ErrEmbeddingCount = fmt.Errorf("%w: embedding count mismatch", core.ErrProvider)

	// ErrEmbeddingDimension is returned when a vector has the wrong length.
	ErrEmbeddingDimension = fmt.Errorf("%w: embedding dimension mismatch", core.ErrProvider)
)
