package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/poiesic/threadbase/ai"
)

// Embedder implements ai.Embedder against a local Ollama server's native API.
// The client is created on first use.
type Embedder struct {
	config     *ai.Config
	httpClient *http.Client
	logger     *slog.Logger

	once    sync.Once
	llm     *ollama.LLM
	initErr error
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

// NewEmbedder creates an Ollama embedder. The host must be the server root,
// e.g. http://localhost:11434.
func NewEmbedder(config *ai.Config, opts ...Option) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if _, err := url.Parse(config.Host); err != nil {
		return nil, fmt.Errorf("ai config: invalid Ollama host: %w", err)
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
	e.logger = e.logger.With("component", "ollama-embedder", "model", config.Model)
	return e, nil
}

func (e *Embedder) init() error {
	e.once.Do(func() {
		e.llm, e.initErr = ollama.New(
			ollama.WithModel(e.config.Model),
			ollama.WithServerURL(e.config.Host),
			ollama.WithHTTPClient(e.httpClient),
		)
	})
	if e.initErr != nil {
		return &ai.ProviderError{Provider: ai.ProviderOllama, Transient: false, Err: e.initErr}
	}
	return nil
}

func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := e.init(); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.llm.CreateEmbedding(callCtx, texts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, ai.Classify(ai.ProviderOllama, err)
	}
	return vectors, nil
}
