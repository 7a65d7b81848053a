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


package threadbase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/threadbase/ai"
	"github.com/poiesic/threadbase/chunker"
	"github.com/poiesic/threadbase/config"
	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/ingestion"
	"github.com/poiesic/threadbase/reembed"
	"github.com/poiesic/threadbase/search"
	"github.com/poiesic/threadbase/storage"
)

// ErrConfigRequired is returned by Open without a configuration.
var ErrConfigRequired = errors.New("config required")

// Database is the entry point of a threadbase instance: one store, one embedding
// provider chain, an ingestion pipeline and a searcher.
type Database struct {
	config   *config.Config
	repo     storage.Repository
	ownsRepo bool
	embedder *embedderChain
	pipeline *ingestion.Pipeline
	searcher *search.Searcher
	logger   *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	embedder ai.Embedder
	repo     storage.Repository
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEmbedder replaces the configured embedding provider. The embedder is still
// wrapped by the retry, fallback and dimension normalization chain.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(o *options) {
		o.embedder = embedder
	}
}

// WithRepository uses repo instead of opening the configured store.
// The caller keeps ownership: Close does not close repo.
func WithRepository(repo storage.Repository) Option {
	return func(o *options) {
		o.repo = repo
	}
}

// Open validates cfg and wires the store, the embedder chain, the ingestion
// pipeline and the searcher.
func Open(cfg *config.Config, opts ...Option) (*Database, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	ctx := context.Background()
	db := &Database{
		config: cfg,
		logger: o.logger.With("component", "database"),
	}

	if o.repo != nil {
		db.repo = o.repo
	} else {
		repo, err := openRepository(ctx, cfg, o.logger)
		if err != nil {
			return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Backend, err)
		}
		db.repo = repo
		db.ownsRepo = true
	}

	embedder, err := newEmbedder(ctx, cfg, o.embedder, o.logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	db.embedder = embedder

	ch, err := chunker.New(cfg.Chunking.MaxChars)
	if err != nil {
		db.Close()
		return nil, err
	}

	db.pipeline, err = ingestion.NewPipeline(db.repo, embedder, ch,
		ingestion.WithLogger(o.logger),
		ingestion.WithDimension(cfg.Embedding.Dimension),
		ingestion.WithPoolSize(cfg.Embedding.Concurrency))
	if err != nil {
		db.Close()
		return nil, err
	}

	db.searcher, err = search.NewSearcher(db.repo, embedder,
		search.WithLogger(o.logger),
		search.WithMaxTopK(cfg.Search.MaxTopK))
	if err != nil {
		db.Close()
		return nil, err
	}

	db.logger.Info("database opened",
		"backend", cfg.Storage.Backend,
		"provider", cfg.Embedding.Provider,
		"dimension", cfg.Embedding.Dimension)
	return db, nil
}

// Config returns the configuration the database was opened with.
func (db *Database) Config() *config.Config {
	return db.config
}

// Repository returns the underlying store.
func (db *Database) Repository() storage.Repository {
	return db.repo
}

// Embedder returns the provider chain used for ingestion and queries.
func (db *Database) Embedder() ai.Embedder {
	return db.embedder
}

// Ingest chunks, embeds and stores one conversation.
func (db *Database) Ingest(ctx context.Context, req *ingestion.Request) (*ingestion.Result, error) {
	return db.pipeline.Ingest(ctx, req)
}

// IngestBatch ingests independent conversations concurrently.
func (db *Database) IngestBatch(ctx context.Context, reqs []*ingestion.Request) []ingestion.BatchResult {
	return db.pipeline.IngestBatch(ctx, reqs)
}

// NoThreshold disables relevance filtering for one search, whatever the configured
// minimum relevance.
const NoThreshold float32 = -1

// Search returns up to topK chunks relevant to query. A zero topK selects the
// configured default and a zero threshold the configured minimum relevance;
// pass NoThreshold to keep every hit.
func (db *Database) Search(ctx context.Context, query string, topK int, threshold float32) ([]*core.SearchResult, error) {
	return db.SearchWithMonitor(ctx, query, topK, threshold, nil)
}

// SearchWithMonitor is Search with stage hooks.
func (db *Database) SearchWithMonitor(
	ctx context.Context,
	query string,
	topK int,
	threshold float32,
	monitor search.SearchMonitor,
) ([]*core.SearchResult, error) {
	if topK == 0 {
		topK = db.config.Search.DefaultTopK
	}
	switch threshold {
	case 0:
		threshold = db.config.Search.MinRelevance
	case NoThreshold:
		threshold = 0
	}
	return db.searcher.SearchWithMonitor(ctx, query, topK, threshold, monitor)
}

// GetConversation returns a conversation with its chunks.
func (db *Database) GetConversation(ctx context.Context, id core.ID) (*core.Conversation, error) {
	return db.repo.GetConversation(ctx, id)
}

// ListConversations returns conversations newest first, without chunks.
func (db *Database) ListConversations(ctx context.Context, offset, limit int) ([]*core.Conversation, error) {
	return db.repo.ListConversations(ctx, offset, limit)
}

// DeleteConversation removes a conversation and its chunks.
func (db *Database) DeleteConversation(ctx context.Context, id core.ID) error {
	if err := db.repo.DeleteConversation(ctx, id); err != nil {
		return err
	}
	db.logger.Info("deleted conversation", "conversation_id", id)
	return nil
}

// Reembed recomputes chunk embeddings with the current provider chain. A nil
// rcfg uses reembed.DefaultConfig with the configured retry schedule.
func (db *Database) Reembed(ctx context.Context, rcfg *reembed.Config, progress io.Writer) (*reembed.Stats, error) {
	if rcfg == nil {
		rcfg = reembed.DefaultConfig()
		rcfg.Backoff = db.config.Backoff()
	}
	c := *rcfg
	c.Dimension = db.config.Embedding.Dimension

	r, err := reembed.NewReembedder(db.repo, db.embedder, &c, progress, reembed.WithLogger(db.logger))
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

// Close releases every resource. The repository is closed only when Open opened it.
func (db *Database) Close() error {
	var errs []error
	if db.pipeline != nil {
		db.pipeline.Release()
	}
	if db.embedder != nil {
		if err := db.embedder.Close(); err != nil {
			db.logger.Error("error closing embedder", "err", err)
			errs = append(errs, err)
		}
	}
	if db.ownsRepo && db.repo != nil {
		if err := db.repo.Close(); err != nil {
			db.logger.Error("error closing repository", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
