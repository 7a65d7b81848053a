package ai

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcEmbedder adapts a function to Embedder for tests in this package.
type funcEmbedder struct {
	fn    func(ctx context.Context, texts []string) ([][]float32, error)
	calls atomic.Int32
}

func (f *funcEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	out, err := f.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *funcEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	return f.fn(ctx, texts)
}

func constant(v ...float32) *funcEmbedder {
	return &funcEmbedder{fn: func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = append([]float32(nil), v...)
		}
		return out, nil
	}}
}

func failing(err error) *funcEmbedder {
	return &funcEmbedder{fn: func(context.Context, []string) ([][]float32, error) {
		return nil, err
	}}
}

func newTestResilient(t *testing.T, primary, fallback Embedder, policy DimensionPolicy) *Resilient {
	t.Helper()
	n, err := NewNormalizer(3, policy, false)
	require.NoError(t, err)
	r, err := NewResilient(primary, ResilientConfig{
		Name:         "primary",
		Fallback:     fallback,
		FallbackName: "hashing",
		Normalizer:   n,
		Backoff:      fastBackoff(3),
	})
	require.NoError(t, err)
	return r
}

func TestNewResilient_Validation(t *testing.T) {
	n, _ := NewNormalizer(3, PolicyPadTruncate, false)
	_, err := NewResilient(nil, ResilientConfig{Normalizer: n})
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewResilient(constant(1), ResilientConfig{})
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = NewResilient(constant(1), ResilientConfig{Normalizer: n, Backoff: Backoff{MaxRetries: -1}})
	assert.ErrorIs(t, err, ErrInvalidBackoff)
}

func TestResilient_PrimarySucceeds(t *testing.T) {
	primary := constant(1, 2)
	r := newTestResilient(t, primary, constant(9, 9, 9), PolicyPadTruncate)

	got, err := r.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2, 0}, {1, 2, 0}}, got)
	assert.Equal(t, 3, r.Dimension())
}

func TestResilient_EmptyInput(t *testing.T) {
	primary := constant(1)
	r := newTestResilient(t, primary, nil, PolicyPadTruncate)

	got, err := r.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(0), primary.calls.Load())
}

func TestResilient_TransientRetriedThenRecovers(t *testing.T) {
	var attempts atomic.Int32
	primary := &funcEmbedder{fn: func(_ context.Context, texts []string) ([][]float32, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("API returned unexpected status code: 503: overloaded")
		}
		return [][]float32{{1, 1, 1}}, nil
	}}
	fallback := constant(7, 7, 7)
	r := newTestResilient(t, primary, fallback, PolicyPadTruncate)

	got, err := r.EmbedText(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1}, got)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, int32(0), fallback.calls.Load())
}

func TestResilient_TransientExhaustedFallsBack(t *testing.T) {
	primary := failing(errors.New("API returned unexpected status code: 429: rate limit"))
	fallback := constant(7, 7, 7)
	r := newTestResilient(t, primary, fallback, PolicyPadTruncate)

	got, err := r.EmbedTexts(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{7, 7, 7}, {7, 7, 7}}, got)
	assert.Equal(t, int32(4), primary.calls.Load(), "one attempt plus three retries")
	assert.Equal(t, int32(1), fallback.calls.Load())
}

func TestResilient_PermanentSkipsRetry(t *testing.T) {
	primary := failing(errors.New("API returned unexpected status code: 401: unauthorized"))
	fallback := constant(7, 7, 7)
	r := newTestResilient(t, primary, fallback, PolicyPadTruncate)

	_, err := r.EmbedText(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, int32(1), fallback.calls.Load())
}

func TestResilient_StrictMismatchFallsBack(t *testing.T) {
	primary := constant(1, 2)
	fallback := constant(5, 5, 5)
	r := newTestResilient(t, primary, fallback, PolicyStrict)

	got, err := r.EmbedText(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 5, 5}, got)
	assert.Equal(t, int32(1), primary.calls.Load())
}

func TestResilient_CountMismatchFallsBack(t *testing.T) {
	primary := &funcEmbedder{fn: func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1, 2, 3}}, nil
	}}
	r := newTestResilient(t, primary, constant(4, 4, 4), PolicyPadTruncate)

	got, err := r.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{4, 4, 4}, {4, 4, 4}}, got)
}

func TestResilient_ZeroVectorsLastResort(t *testing.T) {
	primary := failing(errors.New("bad request"))
	fallback := failing(errors.New("also broken"))
	r := newTestResilient(t, primary, fallback, PolicyPadTruncate)

	got, err := r.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 0, 0}, {0, 0, 0}}, got)
}

func TestResilient_NoFallbackUsesZeroVectors(t *testing.T) {
	r := newTestResilient(t, failing(errors.New("bad request")), nil, PolicyPadTruncate)

	got, err := r.EmbedText(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, got)
}

func TestResilient_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &funcEmbedder{fn: func(ctx context.Context, _ []string) ([][]float32, error) {
		cancel()
		return nil, ctx.Err()
	}}
	fallback := constant(1, 1, 1)
	r := newTestResilient(t, primary, fallback, PolicyPadTruncate)

	_, err := r.EmbedText(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), fallback.calls.Load())
}

func TestBatched_SplitsAndPreservesOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		sizes []int
	)
	inner := &funcEmbedder{fn: func(_ context.Context, texts []string) ([][]float32, error) {
		mu.Lock()
		sizes = append(sizes, len(texts))
		mu.Unlock()
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text))}
		}
		return out, nil
	}}

	b, err := NewBatched(inner, 2, 3)
	require.NoError(t, err)
	defer b.Close()

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	got, err := b.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, text := range texts {
		assert.Equal(t, []float32{float32(len(text))}, got[i])
	}
	assert.ElementsMatch(t, []int{2, 2, 1}, sizes)
}

func TestBatched_SmallInputPassesThrough(t *testing.T) {
	inner := constant(1)
	b, err := NewBatched(inner, 10, 2)
	require.NoError(t, err)
	defer b.Close()

	got, err := b.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(1), inner.calls.Load())

	got, err = b.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestBatched_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	b, err := NewBatched(failing(boom), 1, 2)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	assert.ErrorIs(t, err, boom)
}

func TestNewBatched_Validation(t *testing.T) {
	_, err := NewBatched(nil, 1, 1)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewBatched(constant(1), 0, 1)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
	_, err = NewBatched(constant(1), 1, 0)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
}

// mapCache is an in-memory VectorCache for tests.
type mapCache struct {
	mu      sync.Mutex
	data    map[string][]float32
	failGet bool
}

func (c *mapCache) GetMany(_ context.Context, keys []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, errors.New("cache down")
	}
	out := make([][]float32, len(keys))
	for i, k := range keys {
		out[i] = c.data[k]
	}
	return out, nil
}

func (c *mapCache) SetMany(_ context.Context, keys []string, vectors [][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, k := range keys {
		c.data[k] = vectors[i]
	}
	return nil
}

func (c *mapCache) Close() error { return nil }

func TestCached_ReadThrough(t *testing.T) {
	inner := &funcEmbedder{fn: func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text))}
		}
		return out, nil
	}}
	cache := &mapCache{data: map[string][]float32{}}
	c, err := NewCached(inner, cache, "openai/test", nil)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := c.EmbedTexts(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, first)
	assert.Len(t, cache.data, 2)

	second, err := c.EmbedTexts(ctx, []string{"bb", "ccc", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2}, {3}, {1}}, second)
	assert.Equal(t, int32(2), inner.calls.Load())

	_, err = c.EmbedText(ctx, "ccc")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load(), "fully cached request must not reach the provider")
}

func TestCached_IgnoresCacheFailure(t *testing.T) {
	inner := constant(1, 2)
	c, err := NewCached(inner, &mapCache{data: map[string][]float32{}, failGet: true}, "ns", nil)
	require.NoError(t, err)

	got, err := c.EmbedText(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("a", "text"), CacheKey("a", "text"))
	assert.NotEqual(t, CacheKey("a", "text"), CacheKey("b", "text"))
	assert.NotEqual(t, CacheKey("a", "text"), CacheKey("a", "other"))
}

func TestZeroEmbedder(t *testing.T) {
	z := ZeroEmbedder{Dimension: 2}
	v, err := z.EmbedText(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, v)

	vs, err := z.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 0}, {0, 0}}, vs)
}

func TestRetryDelayUsedByResilient(t *testing.T) {
	start := time.Now()
	r := newTestResilient(t, failing(errors.New("connection reset by peer")), constant(1, 1, 1), PolicyPadTruncate)
	_, err := r.EmbedText(context.Background(), "x")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 7*time.Millisecond, "1ms + 2ms + 4ms of backoff")
}
