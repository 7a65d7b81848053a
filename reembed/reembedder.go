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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/threadbase/ai"
	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/storage"
)

// DefaultCheckpointName names the checkpoint used when Config.CheckpointName is empty.
const DefaultCheckpointName = "reembed"

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// Backoff is the retry schedule for failed batches
	Backoff ai.Backoff

	// Dimension is the required vector length; 0 accepts any length
	Dimension int

	// CheckpointName identifies the progress marker of this job
	CheckpointName string

	// Restart ignores a saved checkpoint and starts from the first chunk
	Restart bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		Backoff:        ai.DefaultBackoff(),
		CheckpointName: DefaultCheckpointName,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BatchSize < 1 || c.ReportInterval < 1 || c.Dimension < 0 {
		return ErrInvalidConfig
	}
	return c.Backoff.Validate()
}

// Stats summarizes a completed run.
type Stats struct {
	// ResumedAfter is the checkpointed chunk ID the run started after; 0 for a full run.
	ResumedAfter core.ID
	Processed    int
	Batches      int
	Elapsed      time.Duration
}

// Reembedder orchestrates the reembedding of all chunks in a database.
type Reembedder struct {
	repo      storage.Repository
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
	logger    *slog.Logger
}

// Option configures a Reembedder.
type Option func(*Reembedder)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr); nil discards it
func NewReembedder(repo storage.Repository, embedder ai.Embedder, config *Config, progress io.Writer, opts ...Option) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = io.Discard
	}

	cfg := *config
	if cfg.CheckpointName == "" {
		cfg.CheckpointName = DefaultCheckpointName
	}

	r := &Reembedder{
		repo:      repo,
		config:    &cfg,
		progress:  progress,
		processor: NewBatchProcessor(repo, embedder, cfg.Backoff, cfg.Dimension),
		iterator:  NewChunkIterator(repo, cfg.BatchSize),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "reembed", "checkpoint", cfg.CheckpointName)

	return r, nil
}

// Run re-embeds every stored chunk with the configured embedder.
// Unless Config.Restart is set, a run resumes after the chunk recorded by the checkpoint.
// Progress is reported to the configured writer.
func (r *Reembedder) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if !r.config.Restart {
		checkpoint, err := r.repo.LoadCheckpoint(ctx, r.config.CheckpointName)
		if err != nil {
			return nil, fmt.Errorf("loading checkpoint: %w", err)
		}
		if checkpoint != nil {
			stats.ResumedAfter = checkpoint.LastID
		}
	}

	total, err := r.iterator.Count(ctx, stats.ResumedAfter)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks to reembed\n")
		return stats, r.resetCheckpoint(ctx)
	}

	if stats.ResumedAfter > 0 {
		fmt.Fprintf(r.progress, "Resuming reembedding after chunk %d: %d chunks left (batch size: %d)\n",
			stats.ResumedAfter, total, r.config.BatchSize)
	} else {
		fmt.Fprintf(r.progress, "Starting reembedding of %d chunks (batch size: %d)\n",
			total, r.config.BatchSize)
	}
	r.logger.Info("reembedding started", "chunks", total, "resumed_after", stats.ResumedAfter)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, stats.ResumedAfter, func(chunks []core.Chunk) error {
		if err := r.processor.Process(ctx, chunks); err != nil {
			return fmt.Errorf("processing batch starting at chunk %d: %w", chunks[0].ID, err)
		}

		last := chunks[len(chunks)-1].ID
		if err := r.repo.SaveCheckpoint(ctx, &core.Checkpoint{Name: r.config.CheckpointName, LastID: last}); err != nil {
			return fmt.Errorf("saving checkpoint: %w", err)
		}

		stats.Processed += len(chunks)
		stats.Batches++
		tracker.Increment(len(chunks))
		return nil
	})
	stats.Elapsed = tracker.Elapsed()
	if err != nil {
		r.logger.Warn("reembedding stopped", "processed", stats.Processed, "err", err)
		return stats, err
	}

	tracker.Finish()
	if err := r.resetCheckpoint(ctx); err != nil {
		return stats, err
	}

	rate := 0.0
	if secs := stats.Elapsed.Seconds(); secs > 0 {
		rate = float64(stats.Processed) / secs
	}
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		stats.Processed, stats.Elapsed.Round(time.Millisecond), rate)
	r.logger.Info("reembedding complete", "processed", stats.Processed, "batches", stats.Batches)

	return stats, nil
}

// resetCheckpoint marks the job as finished so the next run starts from the beginning.
func (r *Reembedder) resetCheckpoint(ctx context.Context) error {
	err := r.repo.SaveCheckpoint(ctx, &core.Checkpoint{Name: r.config.CheckpointName})
	if err != nil {
		return fmt.Errorf("resetting checkpoint: %w", err)
	}
	return nil
}
