package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/threadbase/ai"
)

func TestMemory_GetSet(t *testing.T) {
	m, err := NewMemory(100, 0)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.SetMany(ctx, []string{"a", "b"}, [][]float32{{1, 2}, {3}}))

	got, err := m.GetMany(ctx, []string{"b", "missing", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3}, nil, {1, 2}}, got)
}

func TestNewMemory_InvalidSize(t *testing.T) {
	_, err := NewMemory(0, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestRedis_GetSet(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	r, err := NewRedis(ctx, srv.Addr(), time.Hour)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.SetMany(ctx, []string{"k1", "k2"}, [][]float32{{0.5, -1.25}, {3e-5}}))

	got, err := r.GetMany(ctx, []string{"k2", "nope", "k1"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3e-5}, nil, {0.5, -1.25}}, got)

	srv.FastForward(2 * time.Hour)
	got, err = r.GetMany(ctx, []string{"k1"})
	require.NoError(t, err)
	assert.Nil(t, got[0], "entry should expire")
}

func TestNewRedis_Unreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := NewRedis(context.Background(), addr, 0)
	assert.Error(t, err)
}

func TestRedis_BacksCachedEmbedder(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()
	r, err := NewRedis(ctx, srv.Addr(), 0)
	require.NoError(t, err)
	defer r.Close()

	calls := 0
	inner := embedFunc(func(texts []string) [][]float32 {
		calls++
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{float32(i + 1)}
		}
		return out
	})

	cached, err := ai.NewCached(inner, r, "ollama/nomic", nil)
	require.NoError(t, err)

	first, err := cached.EmbedTexts(ctx, []string{"alpha"})
	require.NoError(t, err)
	second, err := cached.EmbedTexts(ctx, []string{"alpha"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.True(t, srv.Exists(ai.CacheKey("ollama/nomic", "alpha")))
}

type embedFunc func(texts []string) [][]float32

func (f embedFunc) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return f([]string{text})[0], nil
}

func (f embedFunc) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return f(texts), nil
}
