package core

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// Zero means "not yet assigned"; stores assign IDs on first save.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// AuthorType identifies who wrote a message.
type AuthorType int

const (
	// AuthorTypeHuman represents a human participant.
	AuthorTypeHuman AuthorType = iota + 1
	// AuthorTypeAssistant represents an AI assistant.
	AuthorTypeAssistant
	// AuthorTypeSystem represents system or tool output.
	AuthorTypeSystem
)

// String returns the lowercase name of the author type.
func (a AuthorType) String() string {
	switch a {
	case AuthorTypeHuman:
		return "human"
	case AuthorTypeAssistant:
		return "assistant"
	case AuthorTypeSystem:
		return "system"
	default:
		return "unknown"
	}
}

// ParseAuthorType converts a textual author type into an AuthorType.
// Accepts the String() forms plus the common aliases "user" and "ai".
func ParseAuthorType(s string) (AuthorType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "human", "user":
		return AuthorTypeHuman, nil
	case "assistant", "ai", "bot":
		return AuthorTypeAssistant, nil
	case "system", "tool":
		return AuthorTypeSystem, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAuthorType, s)
}

// Message is one entry of an incoming transcript.
type Message struct {
	Text       string
	AuthorName string
	AuthorType AuthorType
	Timestamp  time.Time // When the message was originally sent
}

// Conversation is the root aggregate: a titled transcript owning its chunks.
type Conversation struct {
	ID            ID
	Title         string
	SourceURL     string
	OriginalTitle string    // Title as given by the external source, if different
	CreatedAt     time.Time // Set on first save, kept on upsert
	UpdatedAt     time.Time
	Chunks        []Chunk // Populated by GetConversation, ordered by OrderIndex
}

// Chunk is a bounded, ordered unit of conversation text with one embedding slot.
type Chunk struct {
	ID             ID
	ConversationID ID
	OrderIndex     int
	Text           string
	AuthorName     string
	AuthorType     AuthorType
	Timestamp      time.Time // Timestamp of the first message in the chunk
	Embedding      []float32 // nil when the chunk has not been embedded
}

// HasEmbedding reports whether the chunk carries an embedding vector.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// HasZeroEmbedding reports whether the chunk carries the all-zero placeholder stored
// when every embedding provider failed.
func (c *Chunk) HasZeroEmbedding() bool {
	if !c.HasEmbedding() {
		return false
	}
	for _, x := range c.Embedding {
		if x != 0 {
			return false
		}
	}
	return true
}

// ScoredChunk is a chunk returned by a similarity search together with its distance
// to the query, the derived relevance score and the owning conversation's title.
// Degraded hits carry a zero placeholder embedding and rank after all others.
type ScoredChunk struct {
	Chunk             Chunk
	ConversationTitle string
	Distance          float32
	Score             float32
	Degraded          bool
}

// SearchResult is the denormalized, caller-facing form of a similarity hit.
// It is transient and never persisted.
type SearchResult struct {
	ChunkID           ID
	ConversationID    ID
	OrderIndex        int
	Text              string
	AuthorName        string
	AuthorType        AuthorType
	Timestamp         time.Time
	ConversationTitle string
	RelevanceScore    float32 // In (0, 1], higher is more relevant
	Distance          float32 // L2 distance to the query vector
	Degraded          bool    // Embedding is a zero placeholder; the score carries no meaning
}

// Checkpoint records how far a long-running job has progressed.
type Checkpoint struct {
	Name      string
	LastID    ID
	UpdatedAt time.Time
}
