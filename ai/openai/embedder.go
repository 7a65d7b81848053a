package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/poiesic/threadbase/ai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
// The underlying client is created on first use.
type Embedder struct {
	config     *ai.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	once     sync.Once
	embedder embeddings.Embedder
	initErr  error
}

var _ ai.Embedder = (*Embedder)(nil)

// Option configures an Embedder.
type Option func(*Embedder)

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Embedder) {
		e.httpClient = client
	}
}

// WithLogger sets the logger. If nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Embedder) {
		e.logger = logger
	}
}

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(config *ai.Config, opts ...Option) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &Embedder{
		config:     config,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "openai-embedder", "model", config.Model)

	if config.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
	}

	return e, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
// No network traffic happens until the first embedding request.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config, opts ...Option) (ai.Embedder, error) {
	return newEmbedder(config, opts...)
}

func (e *Embedder) init() error {
	e.once.Do(func() {
		// Local OpenAI-compatible servers accept any token.
		token := e.config.APIKey
		if token == "" {
			token = "none"
		}

		client, err := openai.New(
			openai.WithBaseURL(e.config.Host),
			openai.WithToken(token),
			openai.WithEmbeddingModel(e.config.Model),
			openai.WithHTTPClient(e.httpClient),
		)
		if err != nil {
			e.initErr = err
			return
		}

		e.embedder, e.initErr = embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	})
	if e.initErr != nil {
		return &ai.ProviderError{Provider: ai.ProviderOpenAI, Transient: false, Err: e.initErr}
	}
	return nil
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in one API request.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := e.init(); err != nil {
		return nil, err
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	// The langchaingo embedder rewrites its input slice in place.
	input := append([]string(nil), texts...)
	vectors, err := e.embedder.EmbedDocuments(callCtx, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		if callCtx.Err() != nil {
			// The client hides the context error behind its own message.
			return nil, ai.Classify(ai.ProviderOpenAI, fmt.Errorf("%w after %s: %v", context.DeadlineExceeded, e.config.Timeout, err))
		}
		return nil, ai.Classify(ai.ProviderOpenAI, openai.MapError(err))
	}

	return vectors, nil
}
