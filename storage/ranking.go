package storage

import (
	"cmp"
	"container/heap"
	"fmt"
	"math"
	"slices"

	"github.com/poiesic/threadbase/core"
)

// L2Distance returns the Euclidean distance between a and b. A shorter vector is treated
// as if padded with zeros.
func L2Distance(a, b []float32) float32 {
	if len(a) < len(b) {
		a, b = b, a
	}
	var sum float64
	for i, x := range a {
		var y float32
		if i < len(b) {
			y = b[i]
		}
		d := float64(x - y)
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// Score converts a distance into a relevance score in (0, 1]: 1/(1+d).
func Score(distance float32) float32 {
	return 1 / (1 + distance)
}

// CompareScored orders search hits: non-degraded before degraded, then ascending distance,
// OrderIndex, ConversationID and chunk ID.
func CompareScored(a, b *core.ScoredChunk) int {
	if a.Degraded != b.Degraded {
		if a.Degraded {
			return 1
		}
		return -1
	}
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Chunk.OrderIndex, b.Chunk.OrderIndex); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Chunk.ConversationID, b.Chunk.ConversationID); c != 0 {
		return c
	}
	return cmp.Compare(a.Chunk.ID, b.Chunk.ID)
}

// Ranker selects the best topK chunks from a stream of candidates for exact-scan
// backends. It is not safe for concurrent use.
type Ranker struct {
	query        []float32
	topK         int
	minRelevance float32
	worst        scoredHeap
}

// NewRanker creates a Ranker. Callers validate topK beforehand.
func NewRanker(query []float32, topK int, minRelevance float32) *Ranker {
	return &Ranker{
		query:        query,
		topK:         topK,
		minRelevance: minRelevance,
		worst:        make(scoredHeap, 0, topK),
	}
}

// Offer considers a chunk. Chunks without an embedding are ignored; chunks with a zero
// embedding are kept but marked degraded.
func (r *Ranker) Offer(chunk *core.Chunk) {
	if r.topK <= 0 || !chunk.HasEmbedding() {
		return
	}

	d := L2Distance(r.query, chunk.Embedding)
	score := Score(d)
	if r.minRelevance > 0 && score < r.minRelevance {
		return
	}

	candidate := &core.ScoredChunk{Chunk: *chunk, Distance: d, Score: score, Degraded: chunk.HasZeroEmbedding()}
	if len(r.worst) < r.topK {
		heap.Push(&r.worst, candidate)
		return
	}
	if CompareScored(candidate, r.worst[0]) < 0 {
		r.worst[0] = candidate
		heap.Fix(&r.worst, 0)
	}
}

// Results returns the selected chunks, best first.
func (r *Ranker) Results() []*core.ScoredChunk {
	out := slices.Clone([]*core.ScoredChunk(r.worst))
	slices.SortFunc(out, CompareScored)
	return out
}

// scoredHeap keeps the worst retained candidate on top.
type scoredHeap []*core.ScoredChunk

func (h scoredHeap) Len() int           { return len(h) }
func (h scoredHeap) Less(i, j int) bool { return CompareScored(h[i], h[j]) > 0 }
func (h scoredHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *scoredHeap) Push(x any) { *h = append(*h, x.(*core.ScoredChunk)) }

func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// ValidateSearch checks similarity search arguments.
func ValidateSearch(query []float32, topK int, minRelevance float32) error {
	if len(query) == 0 {
		return fmt.Errorf("%w: empty query vector", ErrInvalidQuery)
	}
	if topK <= 0 {
		return fmt.Errorf("%w: topK %d", ErrInvalidQuery, topK)
	}
	if math.IsNaN(float64(minRelevance)) || minRelevance < 0 || minRelevance > 1 {
		return fmt.Errorf("%w: min relevance %v", ErrInvalidQuery, minRelevance)
	}
	return nil
}

// ValidatePage checks list pagination arguments.
func ValidatePage(offset, limit int) error {
	if offset < 0 || limit <= 0 {
		return fmt.Errorf("%w: offset %d, limit %d", ErrInvalidQuery, offset, limit)
	}
	return nil
}
