package threadbase

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/threadbase/ai"
	"github.com/poiesic/threadbase/ai/cache"
	"github.com/poiesic/threadbase/ai/hashing"
	"github.com/poiesic/threadbase/ai/mock"
	"github.com/poiesic/threadbase/ai/ollama"
	"github.com/poiesic/threadbase/ai/openai"
	"github.com/poiesic/threadbase/config"
)

// embedderChain is the assembled provider chain and the resources it holds.
type embedderChain struct {
	ai.Embedder
	closers []io.Closer
}

func (c *embedderChain) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newProvider creates the configured primary provider.
func newProvider(cfg *config.Config, logger *slog.Logger) (ai.Embedder, error) {
	aiCfg := cfg.AIConfig()
	switch aiCfg.Provider {
	case ai.ProviderOpenAI:
		return openai.NewEmbedder(aiCfg, openai.WithLogger(logger))
	case ai.ProviderOllama:
		return ollama.NewEmbedder(aiCfg, ollama.WithLogger(logger))
	case ai.ProviderHashing:
		return hashing.NewEmbedder(aiCfg.Dimension)
	case ai.ProviderMock:
		return mock.NewMockEmbedder(aiCfg.Dimension), nil
	}
	return nil, fmt.Errorf("%w: %q", ai.ErrUnknownProvider, aiCfg.Provider)
}

// newFallback creates the fallback provider, or nil when it is disabled.
func newFallback(cfg *config.Config) (ai.Embedder, error) {
	switch cfg.Embedding.Fallback {
	case ai.ProviderHashing:
		return hashing.NewEmbedder(cfg.Embedding.Dimension)
	case ai.ProviderMock:
		return mock.NewMockEmbedder(cfg.Embedding.Dimension), nil
	}
	return nil, nil
}

// newVectorCache creates the configured embedding cache, or nil when caching is off.
func newVectorCache(ctx context.Context, cfg *config.Config) (ai.VectorCache, error) {
	c := cfg.Embedding.Cache
	switch c.Type {
	case config.CacheMemory:
		return cache.NewMemory(c.Size, c.TTL.Std())
	case config.CacheRedis:
		return cache.NewRedis(ctx, c.Addr, c.TTL.Std())
	}
	return nil, nil
}

// newEmbedder assembles primary -> sub-batching -> cache -> resilient chain. A non-nil
// primary replaces the configured provider.
func newEmbedder(ctx context.Context, cfg *config.Config, primary ai.Embedder, logger *slog.Logger) (*embedderChain, error) {
	chain := &embedderChain{}
	fail := func(err error) (*embedderChain, error) {
		chain.Close()
		return nil, err
	}

	name := "custom"
	if primary == nil {
		var err error
		if primary, err = newProvider(cfg, logger); err != nil {
			return fail(fmt.Errorf("creating embedding provider: %w", err))
		}
		name = cfg.Embedding.Provider
	}

	batched, err := ai.NewBatched(primary, cfg.Embedding.BatchSize, cfg.Embedding.Concurrency)
	if err != nil {
		return fail(err)
	}
	chain.closers = append(chain.closers, batched)
	var inner ai.Embedder = batched

	vc, err := newVectorCache(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("creating embedding cache: %w", err))
	}
	if vc != nil {
		chain.closers = append(chain.closers, vc)
		namespace := fmt.Sprintf("%s:%s:%d", name, cfg.Embedding.Model, cfg.Embedding.Dimension)
		if inner, err = ai.NewCached(batched, vc, namespace, logger); err != nil {
			return fail(err)
		}
	}

	fallback, err := newFallback(cfg)
	if err != nil {
		return fail(fmt.Errorf("creating fallback provider: %w", err))
	}

	policy, err := ai.ParseDimensionPolicy(cfg.Embedding.DimensionPolicy)
	if err != nil {
		return fail(err)
	}
	normalizer, err := ai.NewNormalizer(cfg.Embedding.Dimension, policy, cfg.Embedding.Renormalize)
	if err != nil {
		return fail(err)
	}

	resilient, err := ai.NewResilient(inner, ai.ResilientConfig{
		Name:         name,
		Fallback:     fallback,
		FallbackName: cfg.Embedding.Fallback,
		Normalizer:   normalizer,
		Backoff:      cfg.Backoff(),
		Logger:       logger,
	})
	if err != nil {
		return fail(err)
	}
	chain.Embedder = resilient
	return chain, nil
}
