package hashing

import (
	"context"
	"errors"

	"github.com/poiesic/threadbase/ai"
	"github.com/poiesic/threadbase/core"
)

// ErrInvalidDimension is returned when the vector dimension is not positive.
var ErrInvalidDimension = errors.New("hashing embedder: dimension must be positive")

const bigramWeight = 0.5

// Embedder maps texts to vectors by feature hashing: every token and every pair of
// adjacent tokens is hashed to a signed slot of the vector. It needs no model or network,
// and texts sharing vocabulary end up close to each other.
type Embedder struct {
	dimension int
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder creates a hashing embedder producing vectors of the given dimension.
func NewEmbedder(dimension int) (*Embedder, error) {
	if dimension < 1 {
		return nil, ErrInvalidDimension
	}
	return &Embedder{dimension: dimension}, nil
}

func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *Embedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	tokens := tokenize(text)
	for i, tok := range tokens {
		e.add(vec, tok, 1)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+tok, bigramWeight)
		}
	}
	return ai.NormalizeVector(vec)
}

func (e *Embedder) add(vec []float32, feature string, weight float32) {
	h := uint64(core.IDFromContent(feature))
	idx := (h >> 1) % uint64(e.dimension)
	if h&1 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
