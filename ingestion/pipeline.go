package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/threadbase/ai"
	"github.com/poiesic/threadbase/chunker"
	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/storage"
)

// titleExcerptRunes bounds the title derived from the first message.
const titleExcerptRunes = 80

// Request is one conversation to ingest.
type Request struct {
	// ConversationID replaces an existing conversation when non-zero.
	ConversationID core.ID
	// Title defaults to an excerpt of the first message when empty.
	Title         string
	SourceURL     string
	OriginalTitle string
	Messages      []core.Message
}

// Result describes a successful ingestion.
type Result struct {
	IngestID       string
	ConversationID core.ID
	ChunksCreated  int
}

// Pipeline orchestrates chunking, embedding and persistence of conversations.
type Pipeline struct {
	repository storage.ConversationRepository
	embedder   ai.Embedder
	chunker    *chunker.Chunker
	pool       *ants.Pool
	dimension  int // 0 skips the dimension check
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size used by IngestBatch.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithDimension makes Ingest verify that every vector has length dim.
func WithDimension(dim int) Option {
	return func(p *Pipeline) error {
		if dim < 0 {
			return fmt.Errorf("%w: dimension %d", core.ErrValidation, dim)
		}
		p.dimension = dim
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	repository storage.ConversationRepository,
	embedder ai.Embedder,
	chunker *chunker.Chunker,
	opts ...Option,
) (*Pipeline, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if chunker == nil {
		return nil, ErrChunkerRequired
	}

	pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		repository: repository,
		embedder:   embedder,
		chunker:    chunker,
		pool:       pool,
		logger:     slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	return p, nil
}

// Ingest chunks, embeds and persists one conversation. On any error nothing is stored.
func (p *Pipeline) Ingest(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	ingestID := uuid.NewString()
	logger := p.logger.With("ingest_id", ingestID)
	start := time.Now()

	if err := core.ValidateMessages(req.Messages); err != nil {
		logger.Debug("rejected ingestion request", "err", err)
		return nil, err
	}

	// Defaults are applied to a copy; the caller's messages stay untouched.
	messages := slices.Clone(req.Messages)
	now := time.Now().UTC()
	for i := range messages {
		if messages[i].Timestamp.IsZero() {
			messages[i].Timestamp = now
		}
	}

	chunks := p.chunker.Chunk(messages)
	if err := p.embed(ctx, chunks); err != nil {
		logger.Warn("embedding failed", "err", err)
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}

	conv := &core.Conversation{
		ID:            req.ConversationID,
		Title:         conversationTitle(req.Title, messages[0].Text),
		SourceURL:     req.SourceURL,
		OriginalTitle: req.OriginalTitle,
	}
	id, err := p.repository.SaveConversation(ctx, conv, chunks)
	if err != nil {
		logger.Warn("persisting conversation failed", "err", err)
		return nil, fmt.Errorf("persisting conversation: %w", err)
	}

	logger.Info("ingested conversation",
		"conversation_id", id,
		"messages", len(messages),
		"chunks", len(chunks),
		"duration", time.Since(start))

	return &Result{
		IngestID:       ingestID,
		ConversationID: id,
		ChunksCreated:  len(chunks),
	}, nil
}

// embed attaches one vector to every chunk using a single batch call.
func (p *Pipeline) embed(ctx context.Context, chunks []core.Chunk) error {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: got %d, want %d", ErrEmbeddingCount, len(vectors), len(chunks))
	}
	for i, v := range vectors {
		if p.dimension > 0 && len(v) != p.dimension {
			return fmt.Errorf("%w: chunk %d has %d, want %d", ErrEmbeddingDimension, i, len(v), p.dimension)
		}
		chunks[i].Embedding = v
	}
	return nil
}

// conversationTitle returns title, or an excerpt of the first message when title is blank.
func conversationTitle(title, firstMessage string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	excerpt := []rune(strings.Join(strings.Fields(firstMessage), " "))
	if len(excerpt) > titleExcerptRunes {
		excerpt = excerpt[:titleExcerptRunes]
	}
	return string(excerpt)
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
