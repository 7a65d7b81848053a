package ai

import "context"

// ZeroEmbedder returns all-zero vectors. It is the last resort of the resilient chain.
type ZeroEmbedder struct {
	Dimension int
}

var _ Embedder = ZeroEmbedder{}

func (z ZeroEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, z.Dimension), nil
}

func (z ZeroEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, z.Dimension)
	}
	return out, nil
}
