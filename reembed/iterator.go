// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"

	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/storage"
)

const (
	// DefaultBatchSize is the default number of chunks to fetch in each batch
	DefaultBatchSize = 100
)

// ChunkIterator walks stored chunks in batches, ordered by chunk ID.
type ChunkIterator struct {
	repo      storage.ConversationRepository
	batchSize int
}

// NewChunkIterator creates a new chunk iterator.
// batchSize: number of chunks to fetch in each batch; non-positive values select DefaultBatchSize
func NewChunkIterator(repo storage.ConversationRepository, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ChunkIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each batch of chunks with an ID greater than afterID.
// Iteration stops on first error from fn or when all chunks are processed.
// Context cancellation is checked between batches.
func (it *ChunkIterator) ForEach(ctx context.Context, afterID core.ID, fn func([]core.Chunk) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return it.repo.ForEachChunkBatch(ctx, afterID, it.batchSize, func(chunks []core.Chunk) error {
		if err := fn(chunks); err != nil {
			return err
		}
		return ctx.Err()
	})
}

// Count returns the number of chunks with an ID greater than afterID.
func (it *ChunkIterator) Count(ctx context.Context, afterID core.ID) (int, error) {
	total := 0
	err := it.ForEach(ctx, afterID, func(chunks []core.Chunk) error {
		total += len(chunks)
		return nil
	})
	return total, err
}
