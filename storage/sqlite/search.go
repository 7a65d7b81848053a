package sqlite

import (
	"context"

	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/storage"
)

// SimilaritySearch scans embedded chunks and keeps the topK nearest by L2 distance.
func (s *Store) SimilaritySearch(ctx context.Context, query []float32, topK int, minRelevance float32) ([]*core.ScoredChunk, error) {
	if err := storage.ValidateSearch(query, topK, minRelevance); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`, v.title
		FROM chunks c
		JOIN conversations v ON v.id = c.conversation_id
		WHERE c.embedding IS NOT NULL
	`)
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
