package reembed

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/threadbase/ai"
	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/storage"
)

// BatchProcessor computes embeddings for batches of chunks and writes them back.
type BatchProcessor struct {
	repo      storage.ConversationRepository
	embedder  ai.Embedder
	backoff   ai.Backoff
	dimension int
}

// NewBatchProcessor creates a new batch processor.
// backoff: retry schedule for transient provider failures and store write failures
// dimension: required vector length; 0 accepts any length
func NewBatchProcessor(repo storage.ConversationRepository, embedder ai.Embedder, backoff ai.Backoff, dimension int) *BatchProcessor {
	return &BatchProcessor{
		repo:      repo,
		embedder:  embedder,
		backoff:   backoff,
		dimension: dimension,
	}
}

// Process embeds the text of every chunk and replaces the stored embeddings in one update.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	var embeddings [][]float32
	err := ai.Retry(ctx, bp.backoff, ai.IsTransient, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return fmt.Errorf("generating embeddings: %w", err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCount, len(chunks), len(embeddings))
	}

	updates := make(map[core.ID][]float32, len(chunks))
	for i := range chunks {
		if bp.dimension > 0 && len(embeddings[i]) != bp.dimension {
			return fmt.Errorf("%w: chunk %d has %d, want %d",
				ErrEmbeddingDimension, chunks[i].ID, len(embeddings[i]), bp.dimension)
		}
		updates[chunks[i].ID] = embeddings[i]
	}

	err = ai.Retry(ctx, bp.backoff, isRetryableWrite, func(ctx context.Context) error {
		return bp.repo.UpdateEmbeddings(ctx, updates)
	})
	if err != nil {
		return fmt.Errorf("updating embeddings: %w", err)
	}

	return nil
}

// isRetryableWrite reports whether a failed store write may succeed on a later attempt.
func isRetryableWrite(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, core.ErrPersistence) && !errors.Is(err, storage.ErrStorageClosed)
}
