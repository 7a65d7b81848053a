package search

import "github.com/poiesic/threadbase/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, topK int, minRelevance float32)
	AfterQueryEmbedding(vector []float32)
	AfterSimilaritySearch(hits []*core.ScoredChunk)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = noopMonitor{}

func (noopMonitor) Start(string, int, float32)                {}
func (noopMonitor) AfterQueryEmbedding([]float32)             {}
func (noopMonitor) AfterSimilaritySearch([]*core.ScoredChunk) {}
func (noopMonitor) Finish([]*core.SearchResult)               {}
