package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/threadbase/ai"
	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/storage"
)

// DefaultMaxTopK is the largest topK accepted when none is configured.
const DefaultMaxTopK = 50

// Searcher answers natural-language queries with the most relevant stored chunks.
type Searcher struct {
	repository storage.ConversationRepository
	embedder   ai.Embedder
	maxTopK    int
	monitor    SearchMonitor
	logger     *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMaxTopK sets the largest topK a query may ask for.
// Default is DefaultMaxTopK.
func WithMaxTopK(maxTopK int) Option {
	return func(s *Searcher) error {
		if maxTopK < 1 {
			return ErrInvalidMaxTopK
		}
		s.maxTopK = maxTopK
		return nil
	}
}

// WithMonitor sets the monitor used by Search.
func WithMonitor(monitor SearchMonitor) Option {
	return func(s *Searcher) error {
		s.monitor = monitor
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	repository storage.ConversationRepository,
	embedder ai.Embedder,
	opts ...Option,
) (*Searcher, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		repository: repository,
		embedder:   embedder,
		maxTopK:    DefaultMaxTopK,
		logger:     slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")

	return s, nil
}

// MaxTopK returns the largest accepted topK.
func (s *Searcher) MaxTopK() int {
	return s.maxTopK
}

// Search returns up to topK chunks most relevant to query, best first.
// Results scoring below minRelevance are dropped; zero disables the filter.
func (s *Searcher) Search(ctx context.Context, query string, topK int, minRelevance float32) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, topK, minRelevance, s.monitor)
}

// SearchWithMonitor is Search with a monitor that observes each stage.
// A nil monitor disables observation.
func (s *Searcher) SearchWithMonitor(
	ctx context.Context,
	query string,
	topK int,
	minRelevance float32,
	monitor SearchMonitor,
) ([]*core.SearchResult, error) {
	if err := core.ValidateQuery(query, topK, s.maxTopK); err != nil {
		return nil, err
	}
	if err := core.ValidateThreshold(minRelevance); err != nil {
		return nil, err
	}
	if monitor == nil {
		monitor = noopMonitor{}
	}

	start := time.Now()
	monitor.Start(query, topK, minRelevance)

	vectors, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		s.logger.Error("error generating embedding for query", "err", err)
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, ErrQueryEmbedding
	}
	monitor.AfterQueryEmbedding(vectors[0])

	hits, err := s.repository.SimilaritySearch(ctx, vectors[0], topK, minRelevance)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}
	monitor.AfterSimilaritySearch(hits)

	results := make([]*core.SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, toResult(hit))
	}
	monitor.Finish(results)

	s.logger.Debug("search complete",
		"top_k", topK,
		"results", len(results),
		"duration", time.Since(start))

	return results, nil
}

func toResult(hit *core.ScoredChunk) *core.SearchResult {
	return &core.SearchResult{
		ChunkID:           hit.Chunk.ID,
		ConversationID:    hit.Chunk.ConversationID,
		OrderIndex:        hit.Chunk.OrderIndex,
		Text:              hit.Chunk.Text,
		AuthorName:        hit.Chunk.AuthorName,
		AuthorType:        hit.Chunk.AuthorType,
		Timestamp:         hit.Chunk.Timestamp,
		ConversationTitle: hit.ConversationTitle,
		RelevanceScore:    hit.Score,
		Distance:          hit.Distance,
		Degraded:          hit.Degraded,
	}
}
