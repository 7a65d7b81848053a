package ai

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/poiesic/threadbase/core"
)

// Cached is a read-through embedding cache. Cache errors are logged and otherwise ignored.
type Cached struct {
	inner     Embedder
	cache     VectorCache
	namespace string
	logger    *slog.Logger
}

var _ Embedder = (*Cached)(nil)

// NewCached wraps inner with cache. The namespace separates vectors of different
// providers and models sharing one cache.
func NewCached(inner Embedder, cache VectorCache, namespace string, logger *slog.Logger) (*Cached, error) {
	if inner == nil {
		return nil, ErrEmbedderRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		inner:     inner,
		cache:     cache,
		namespace: namespace,
		logger:    logger.With("component", "embedding-cache", "namespace", namespace),
	}, nil
}

// CacheKey returns the cache key of text in namespace.
func CacheKey(namespace, text string) string {
	return namespace + ":" + strconv.FormatUint(uint64(core.IDFromContent(text)), 16)
}

func (c *Cached) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Cached) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = CacheKey(c.namespace, text)
	}

	results, err := c.cache.GetMany(ctx, keys)
	if err != nil || len(results) != len(texts) {
		if err != nil {
			c.logger.Warn("cache lookup failed", "error", err)
		}
		results = make([][]float32, len(texts))
	}

	var (
		missIdx   []int
		missTexts []string
	)
	for i, v := range results {
		if v == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	if len(missIdx) == 0 {
		c.logger.Debug("cache hit", "count", len(texts))
		return results, nil
	}

	vectors, err := c.inner.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, ErrCountMismatch
	}

	missKeys := make([]string, len(missIdx))
	for j, i := range missIdx {
		results[i] = vectors[j]
		missKeys[j] = keys[i]
	}
	if err := c.cache.SetMany(ctx, missKeys, vectors); err != nil {
		c.logger.Warn("cache store failed", "error", err)
	}

	c.logger.Debug("cache lookup", "hits", len(texts)-len(missIdx), "misses", len(missIdx))
	return results, nil
}
