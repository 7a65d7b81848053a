package ai

import (
	"context"
	"fmt"
	"log/slog"
)

// ResilientConfig configures NewResilient.
type ResilientConfig struct {
	// Name identifies the primary provider in logs and errors.
	Name string
	// Fallback is consulted once the primary gives up. Optional.
	Fallback Embedder
	// FallbackName identifies the fallback provider.
	FallbackName string
	// Normalizer brings every vector to the store dimension. Required.
	Normalizer *Normalizer
	// Backoff is the retry schedule for transient primary failures.
	Backoff Backoff
	Logger  *slog.Logger
}

// Resilient wraps a primary embedder with retries, a fallback provider and, as a last
// resort, zero vectors. Its output always has the normalizer's dimension, and it only
// fails when the context is done.
type Resilient struct {
	primary      Embedder
	name         string
	fallback     Embedder
	fallbackName string
	normalizer   *Normalizer
	backoff      Backoff
	logger       *slog.Logger
}

var _ Embedder = (*Resilient)(nil)

// NewResilient creates the fallback chain around primary.
func NewResilient(primary Embedder, cfg ResilientConfig) (*Resilient, error) {
	if primary == nil {
		return nil, ErrEmbedderRequired
	}
	if cfg.Normalizer == nil {
		return nil, ErrInvalidDimension
	}
	if err := cfg.Backoff.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "primary"
	}
	if cfg.FallbackName == "" {
		cfg.FallbackName = "fallback"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Resilient{
		primary:      primary,
		name:         cfg.Name,
		fallback:     cfg.Fallback,
		fallbackName: cfg.FallbackName,
		normalizer:   cfg.Normalizer,
		backoff:      cfg.Backoff,
		logger:       logger.With("component", "embedder", "provider", cfg.Name),
	}, nil
}

// Dimension returns the length of every vector this embedder produces.
func (r *Resilient) Dimension() int {
	return r.normalizer.Dimension()
}

func (r *Resilient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := r.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (r *Resilient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := r.attempt(ctx, r.name, r.primary, texts, r.backoff)
	if err == nil {
		return vectors, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if r.fallback != nil {
		r.logger.Warn("primary embedding provider failed, using fallback",
			"fallback", r.fallbackName,
			"count", len(texts),
			"transient", IsTransient(err),
			"error", err)

		vectors, err = r.attempt(ctx, r.fallbackName, r.fallback, texts, NoRetry)
		if err == nil {
			return vectors, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}

	r.logger.Warn("all embedding providers failed, storing zero vectors",
		"count", len(texts),
		"dimension", r.normalizer.Dimension(),
		"error", err)
	return ZeroEmbedder{Dimension: r.normalizer.Dimension()}.EmbedTexts(ctx, texts)
}

func (r *Resilient) attempt(ctx context.Context, name string, e Embedder, texts []string, b Backoff) ([][]float32, error) {
	var out [][]float32
	err := Retry(ctx, b, IsTransient, func(ctx context.Context) error {
		raw, err := e.EmbedTexts(ctx, texts)
		if err != nil {
			return Classify(name, err)
		}
		if len(raw) != len(texts) {
			return Classify(name, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(raw), len(texts)))
		}

		adjusted := make([][]float32, len(raw))
		for i, v := range raw {
			if adjusted[i], err = r.normalizer.Apply(v); err != nil {
				return Classify(name, err)
			}
		}
		out = adjusted
		return nil
	})
	return out, err
}
