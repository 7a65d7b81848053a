package postgres

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/storage"
)

const (
	// minCandidates is the smallest number of index candidates handed to the ranker.
	minCandidates = 40
	// maxEfSearch is the largest hnsw.ef_search pgvector accepts.
	maxEfSearch = 1000
)

// SimilaritySearch asks the HNSW index for nearest candidates and ranks them with
// storage.Ranker.
func (s *Store) SimilaritySearch(ctx context.Context, query []float32, topK int, minRelevance float32) ([]*core.ScoredChunk, error) {
	if err := storage.ValidateSearch(query, topK, minRelevance); err != nil {
		return nil, err
	}
	if err := s.checkDimension(query); err != nil {
		return nil, err
	}

	// The HNSW scan yields at most hnsw.ef_search rows, so widen it to the candidate count
	// for this transaction only.
	candidates := min(max(2*topK, minCandidates), maxEfSearch)
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, storage.Wrap("similarity search", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT set_config('hnsw.ef_search', $1, true)`, strconv.Itoa(candidates)); err != nil {
		return nil, storage.Wrap("similarity search", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT `+chunkColumns+`, v.title
		FROM (
			SELECT * FROM chunks
			WHERE embedding IS NOT NULL
			ORDER BY embedding <-> $1
			LIMIT $2
		) c
		JOIN conversations v ON v.id = c.conversation_id
	`, pgvector.NewVector(query), candidates)
	if err != nil {
		return nil, storage.Wrap("similarity search", err)
	}
	defer rows.Close()

	ranker := storage.NewRanker(query, topK, minRelevance)
	titles := make(map[core.ID]string)
	for rows.Next() {
		var title string
		chunk, err := scanChunk(rows, &title)
		if err != nil {
			return nil, storage.Wrap("similarity search", err)
		}
		titles[chunk.ConversationID] = title
		ranker.Offer(chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("similarity search", err)
	}

	results := ranker.Results()
	for _, res := range results {
		res.ConversationTitle = titles[res.Chunk.ConversationID]
	}
	return results, nil
}
