package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/storage"
)

// SimilaritySearch scans every stored chunk and keeps the topK nearest by L2 distance.
func (r *Repository) SimilaritySearch(ctx context.Context, query []float32, topK int, minRelevance float32) ([]*core.ScoredChunk, error) {
	if err := storage.ValidateSearch(query, topK, minRelevance); err != nil {
		return nil, err
	}

	var results []*core.ScoredChunk
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		ranker := storage.NewRanker(query, topK, minRelevance)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		scanned := 0
		for iter.Rewind(); iter.Valid(); iter.Next() {
			// Check for cancellation periodically on large stores.
			if scanned++; scanned%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			err := iter.Item().Value(func(val []byte) error {
				chunk, err := storage.UnmarshalChunk(val)
				if err != nil {
					return err
				}
				ranker.Offer(chunk)
				return nil
			})
			if err != nil {
				return err
			}
		}

		results = ranker.Results()
		return r.fillTitles(tx, results)
	}, false)
	if err != nil {
		return nil, storage.Wrap("similarity search", err)
	}
	return results, nil
}

// fillTitles denormalizes conversation titles into search hits.
func (r *Repository) fillTitles(tx *badger.Txn, results []*core.ScoredChunk) error {
	titles := make(map[core.ID]string)
	for _, res := range results {
		id := res.Chunk.ConversationID
		title, ok := titles[id]
		if !ok {
			conv, err := r.readConversation(tx, id)
			if err != nil {
				return err
			}
			if conv != nil {
				title = conv.Title
			}
			titles[id] = title
		}
		res.ConversationTitle = title
	}
	return nil
}
