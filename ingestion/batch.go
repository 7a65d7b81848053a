package ingestion

import (
	"context"
	"fmt"
	"sync"
)

// BatchResult is the outcome of one request in IngestBatch.
type BatchResult struct {
	Index  int
	Result *Result
	Err    error
}

// IngestBatch ingests independent conversations concurrently on the pipeline's pool.
// Results are returned in request order; one failure does not affect the others.
func (p *Pipeline) IngestBatch(ctx context.Context, requests []*Request) []BatchResult {
	results := make([]BatchResult, len(requests))
	var wg sync.WaitGroup

	for i, req := range requests {
		results[i].Index = i
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			results[i].Result, results[i].Err = p.Ingest(ctx, req)
		})
		if err != nil {
			wg.Done()
			results[i].Err = fmt.Errorf("submitting request %d: %w", i, err)
		}
	}

	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	p.logger.Info("batch ingestion finished", "requests", len(requests), "failed", failed)
	return results
}
