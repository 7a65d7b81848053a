package ai

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Batched splits large requests into sub-batches embedded concurrently on a worker pool.
type Batched struct {
	inner     Embedder
	batchSize int
	pool      *ants.Pool
}

var _ Embedder = (*Batched)(nil)

// NewBatched creates a Batched embedder. Call Close to release the worker pool.
func NewBatched(inner Embedder, batchSize, concurrency int) (*Batched, error) {
	if inner == nil {
		return nil, ErrEmbedderRequired
	}
	if batchSize < 1 || concurrency < 1 {
		return nil, ErrInvalidBatchSize
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, err
	}

	return &Batched{inner: inner, batchSize: batchSize, pool: pool}, nil
}

func (b *Batched) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return b.inner.EmbedText(ctx, text)
}

func (b *Batched) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) <= b.batchSize {
		return b.inner.EmbedTexts(ctx, texts)
	}

	numBatches := (len(texts) + b.batchSize - 1) / b.batchSize
	results := make([][]float32, len(texts))
	errs := make([]error, numBatches)

	var wg sync.WaitGroup
	for i := 0; i < numBatches; i++ {
		start := i * b.batchSize
		end := min(start+b.batchSize, len(texts))

		wg.Add(1)
		batchIdx := i
		err := b.pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[batchIdx] = err
				return
			}
			vectors, err := b.inner.EmbedTexts(ctx, texts[start:end])
			if err != nil {
				errs[batchIdx] = err
				return
			}
			if len(vectors) != end-start {
				errs[batchIdx] = ErrCountMismatch
				return
			}
			copy(results[start:end], vectors)
		})
		if err != nil {
			wg.Done()
			errs[batchIdx] = err
		}
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Close releases the worker pool.
func (b *Batched) Close() error {
	b.pool.Release()
	return nil
}
