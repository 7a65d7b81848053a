package storage

import (
	"errors"
	"testing"

	"github.com/poiesic/threadbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL2Distance(t *testing.T) {
	assert.InDelta(t, 5, L2Distance([]float32{0, 0}, []float32{3, 4}), 1e-6)
	assert.InDelta(t, 0, L2Distance([]float32{1, 2}, []float32{1, 2}), 1e-6)
	// Missing components count as zero.
	assert.InDelta(t, 2, L2Distance([]float32{0, 0, 2}, []float32{0, 0}), 1e-6)
	assert.InDelta(t, 2, L2Distance([]float32{0, 0}, []float32{0, 0, 2}), 1e-6)
}

func TestScore(t *testing.T) {
	assert.Equal(t, float32(1), Score(0))
	assert.Equal(t, float32(0.5), Score(1))
	assert.Greater(t, Score(0.1), Score(0.2))
}

func chunkAt(id, convID core.ID, order int, v ...float32) *core.Chunk {
	return &core.Chunk{ID: id, ConversationID: convID, OrderIndex: order, Text: "t", Embedding: v}
}

func TestRanker_TopK(t *testing.T) {
	r := NewRanker([]float32{0}, 3, 0)
	for i := 10; i >= 1; i-- {
		r.Offer(chunkAt(core.ID(i), 1, i, float32(i)))
	}

	results := r.Results()
	require.Len(t, results, 3)
	assert.Equal(t, core.ID(1), results[0].Chunk.ID)
	assert.Equal(t, core.ID(2), results[1].Chunk.ID)
	assert.Equal(t, core.ID(3), results[2].Chunk.ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.InDelta(t, 0.5, results[0].Score, 1e-6)
}

func TestRanker_TieBreak(t *testing.T) {
	r := NewRanker([]float32{0, 0}, 10, 0)
	// All equidistant from the query.
	r.Offer(chunkAt(6, 2, 1, 1, 0))
	r.Offer(chunkAt(5, 2, 0, 0, 1))
	r.Offer(chunkAt(4, 1, 1, -1, 0))
	r.Offer(chunkAt(3, 1, 0, 0, -1))
	r.Offer(chunkAt(2, 1, 0, 0, -1))

	var got []core.ID
	for _, res := range r.Results() {
		got = append(got, res.Chunk.ID)
	}
	assert.Equal(t, []core.ID{2, 3, 5, 4, 6}, got)
}

func TestRanker_DegradedRankLast(t *testing.T) {
	r := NewRanker([]float32{1, 0}, 2, 0)
	r.Offer(chunkAt(1, 1, 0, 0, 0))   // zero placeholder, distance 1
	r.Offer(chunkAt(2, 1, 1, 2.5, 0)) // distance 1.5
	r.Offer(chunkAt(3, 1, 2, 4, 0))   // distance 3

	results := r.Results()
	require.Len(t, results, 2)
	assert.Equal(t, core.ID(2), results[0].Chunk.ID)
	assert.False(t, results[0].Degraded)
	assert.Equal(t, core.ID(3), results[1].Chunk.ID)

	// With room to spare the placeholder is still returned, after real hits.
	r = NewRanker([]float32{1, 0}, 5, 0)
	r.Offer(chunkAt(1, 1, 0, 0, 0))
	r.Offer(chunkAt(2, 1, 1, 2.5, 0))
	results = r.Results()
	require.Len(t, results, 2)
	assert.Equal(t, core.ID(2), results[0].Chunk.ID)
	assert.Equal(t, core.ID(1), results[1].Chunk.ID)
	assert.True(t, results[1].Degraded)
	assert.InDelta(t, 0.5, results[1].Score, 1e-6)
}

func TestRanker_SkipsMissingEmbeddingsAndFilters(t *testing.T) {
	r := NewRanker([]float32{0}, 5, 0.4)
	r.Offer(chunkAt(1, 1, 0))      // no embedding
	r.Offer(chunkAt(2, 1, 1, 0.5)) // score 0.667
	r.Offer(chunkAt(3, 1, 2, 2))   // score 0.333, filtered

	results := r.Results()
	require.Len(t, results, 1)
	assert.Equal(t, core.ID(2), results[0].Chunk.ID)
}

func TestRanker_Empty(t *testing.T) {
	results := NewRanker([]float32{1, 2}, 5, 0).Results()
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRanker_Deterministic(t *testing.T) {
	offer := func(order []int) []*core.ScoredChunk {
		r := NewRanker([]float32{0, 0}, 4, 0)
		for _, i := range order {
			r.Offer(chunkAt(core.ID(i), core.ID(i%3), i%2, float32(i%4), 1))
		}
		return r.Results()
	}

	a := offer([]int{1, 2, 3, 4, 5, 6, 7, 8})
	b := offer([]int{8, 7, 6, 5, 4, 3, 2, 1})
	require.Len(t, a, 4)
	for i := range a {
		assert.Equal(t, a[i].Chunk.ID, b[i].Chunk.ID)
	}
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("op", nil))

	cause := errors.New("disk full")
	err := Wrap("save conversation", cause)
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "save conversation")

	assert.Equal(t, ErrConversationNotFound, Wrap("get", ErrConversationNotFound))
	assert.Equal(t, ErrInvalidQuery, Wrap("list", ErrInvalidQuery))
	assert.False(t, errors.Is(Wrap("get", ErrConversationNotFound), core.ErrPersistence))
}

func TestValidateSearch(t *testing.T) {
	assert.NoError(t, ValidateSearch([]float32{1}, 1, 0))
	assert.NoError(t, ValidateSearch([]float32{1}, 5, 1))
	assert.ErrorIs(t, ValidateSearch(nil, 1, 0), core.ErrValidation)
	assert.ErrorIs(t, ValidateSearch([]float32{1}, 0, 0), ErrInvalidQuery)
	assert.ErrorIs(t, ValidateSearch([]float32{1}, 1, -0.1), ErrInvalidQuery)
	assert.ErrorIs(t, ValidateSearch([]float32{1}, 1, 1.5), ErrInvalidQuery)
}

func TestValidatePage(t *testing.T) {
	assert.NoError(t, ValidatePage(0, 1))
	assert.NoError(t, ValidatePage(100, 10))
	assert.ErrorIs(t, ValidatePage(-1, 10), ErrInvalidQuery)
	assert.ErrorIs(t, ValidatePage(0, 0), ErrInvalidQuery)
}
