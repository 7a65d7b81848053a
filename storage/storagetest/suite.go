package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty repository. It registers its own cleanup.
type Factory func(t *testing.T) storage.Repository

// Run executes the conformance suite. dim is the embedding dimension the backend
// accepts; it must be at least 4.
func Run(t *testing.T, dim int, newRepo Factory) {
	require.GreaterOrEqual(t, dim, 4, "suite vectors need at least 4 components")

	s := &suite{dim: dim, newRepo: newRepo}
	t.Run("SaveAndGet", s.testSaveAndGet)
	t.Run("SaveRejectsInvalidChunks", s.testSaveRejectsInvalidChunks)
	t.Run("SaveWithoutChunks", s.testSaveWithoutChunks)
	t.Run("Upsert", s.testUpsert)
	t.Run("UpsertUnknownID", s.testUpsertUnknownID)
	t.Run("SaveCancelled", s.testSaveCancelled)
	t.Run("GetNotFound", s.testGetNotFound)
	t.Run("List", s.testList)
	t.Run("ListInvalid", s.testListInvalid)
	t.Run("DeleteCascades", s.testDeleteCascades)
	t.Run("DeleteNotFound", s.testDeleteNotFound)
	t.Run("SearchEmptyStore", s.testSearchEmptyStore)
	t.Run("SearchTopK", s.testSearchTopK)
	t.Run("SearchLargeTopK", s.testSearchLargeTopK)
	t.Run("SearchSkipsUnembedded", s.testSearchSkipsUnembedded)
	t.Run("SearchThreshold", s.testSearchThreshold)
	t.Run("SearchDegradedLast", s.testSearchDegradedLast)
	t.Run("SearchTieBreak", s.testSearchTieBreak)
	t.Run("SearchInvalid", s.testSearchInvalid)
	t.Run("UpdateEmbeddings", s.testUpdateEmbeddings)
	t.Run("UpdateEmbeddingsUnknownChunk", s.testUpdateEmbeddingsUnknownChunk)
	t.Run("ForEachChunkBatch", s.testForEachChunkBatch)
	t.Run("Checkpoints", s.testCheckpoints)
	t.Run("ConcurrentSaves", s.testConcurrentSaves)
}

type suite struct {
	dim     int
	newRepo Factory
}

// vec returns a dim-long vector starting with vals.
func (s *suite) vec(vals ...float32) []float32 {
	v := make([]float32, s.dim)
	copy(v, vals)
	return v
}

// chunks builds n contiguous chunks; embed decides each chunk's vector (nil for none).
func (s *suite) chunks(n int, embed func(i int) []float32) []core.Chunk {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]core.Chunk, n)
	for i := range out {
		author, authorType := "ana", core.AuthorTypeHuman
		if i%2 == 1 {
			author, authorType = "assistant", core.AuthorTypeAssistant
		}
		out[i] = core.Chunk{
			OrderIndex: i,
			Text:       fmt.Sprintf("chunk %d text", i),
			AuthorName: author,
			AuthorType: authorType,
			Timestamp:  ts.Add(time.Duration(i) * time.Minute),
		}
		if embed != nil {
			out[i].Embedding = embed(i)
		}
	}
	return out
}

func (s *suite) save(t *testing.T, repo storage.Repository, title string, chunks []core.Chunk) core.ID {
	t.Helper()
	id, err := repo.SaveConversation(context.Background(), &core.Conversation{Title: title}, chunks)
	require.NoError(t, err)
	require.NotZero(t, id)
	return id
}

func (s *suite) countChunks(t *testing.T, repo storage.Repository) int {
	t.Helper()
	total := 0
	err := repo.ForEachChunkBatch(context.Background(), 0, 7, func(batch []core.Chunk) error {
		total += len(batch)
		return nil
	})
	require.NoError(t, err)
	return total
}

func (s *suite) testSaveAndGet(t *testing.T) {
	repo := s.newRepo(t)
	ctx := context.Background()

	conv := &core.Conversation{
		Title:         "Database migration",
		SourceURL:     "https://chat.example.com/c/1",
		OriginalTitle: "db-migration",
	}
	chunks := s.chunks(3, func(i int) []float32 { return s.vec(float32(i), 1) })
	before := time.Now().Add(-time.Second)

	id, err := repo.SaveConversation(ctx, conv, chunks)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, id, conv.ID)
	assert.True(t, conv.CreatedAt.After(before))

	seen := make(map[core.ID]bool)
	for _, c := range chunks {
		assert.NotZero(t, c.ID)
		assert.Equal(t, id, c.ConversationID)
		assert.False(t, seen[c.ID], "chunk IDs must be unique")
		seen[c.ID] = true
	}

	got, err := repo.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, conv.Title, got.Title)
	assert.Equal(t, conv.SourceURL, got.SourceURL)
	assert.Equal(t, conv.OriginalTitle, got.OriginalTitle)
	assert.WithinDuration(t, conv.CreatedAt, got.CreatedAt, time.Millisecond)

	require.Len(t, got.Chunks, 3)
	for i, c := range got.Chunks {
		assert.Equal(t, i, c.OrderIndex)
		assert.Equal(t, chunks[i].ID, c.ID)
		assert.Equal(t, id, c.ConversationID)
		assert.Equal(t, chunks[i].Text, c.Text)
		assert.Equal(t, chunks[i].AuthorName, c.AuthorName)
		assert.Equal(t, chunks[i].AuthorType, c.AuthorType)
		assert.WithinDuration(t, chunks[i].Timestamp, c.Timestamp, time.Millisecond)
		require.Len(t, c.Embedding, s.dim)
		assert.InDeltaSlice(t, chunks[i].Embedding, c.Embedding, 1e-6)
	}
}

func (s *suite) testSaveRejectsInvalidChunks(t *testing.T) {
	repo := s.newRepo(t)
	ctx := context.Background()

	chunks := s.chunks(3, nil)
	chunks[2].OrderIndex = 5

	_, err := repo.SaveConversation(ctx, &core.Conversation{Title: "gap"}, chunks)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.ErrorIs(t, err, core.ErrInvalidChunks)

	list, err := repo.ListConversations(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, s.countChunks(t, repo))
}

func (s *suite) testSaveWithoutChunks(t *testing.T) {
	repo := s.newRepo(t)

	id := s.save(t, repo, "empty", nil)
	got, err := repo.GetConversation(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, got.Chunks)
}

func (s *suite) testUpsert(t *testing.T) {
	repo := s.newRepo(t)
	ctx := context.Background()

	id := s.save(t, repo, "first", s.chunks(4, func(i int) []float32 { return s.vec(1) }))
	original, err := repo.GetConversation(ctx, id)
	require.NoError(t, err)

	conv := &core.Conversation{ID: id, Title: "second"}
	replacement := s.chunks(2, func(i int) []float32 { return s.vec(2) })
	gotID, err := repo.SaveConversation(ctx, conv, replacement)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)

	got, err := repo.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Title)
	assert.WithinDuration(t, original.CreatedAt, got.CreatedAt, time.Millisecond)
	require.Len(t, got.Chunks, 2)
	assert.Equal(t, replacement[0].ID, got.Chunks[0].ID)

	// Old chunks are gone from every read path.
	assert.Equal(t, 2, s.countChunks(t, repo))
	results, err := repo.SimilaritySearch(ctx, s.vec(1), 10, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	list, err := repo.ListConversations(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func (s *suite) testUpsertUnknownID(t *testing.T) {
	repo := s.newRepo(t)

	_, err := repo.SaveConversation(context.Background(), &core.Conversation{ID: 987654, Title: "ghost"}, s.chunks(1, nil))
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Zero(t, s.countChunks(t, repo))
}

func (s *suite) testSaveCancelled(t *testing.T) {
	repo := s.newRepo(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.SaveConversation(ctx, &core.Conversation{Title: "cancelled"}, s.chunks(3, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	list, err := repo.ListConversations(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, s.countChunks(t, repo))
}

func (s *suite) testGetNotFound(t *testing.T) {
	repo := s.newRepo(t)

	_, err := repo.GetConversation(context.Background(), 424242)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.False(t, errors.Is(err, core.ErrPersistence))
}

func (s *suite) testList(t *testing.T) {
	repo := s.newRepo(t)
	ctx := context.Background()

	var ids []core.ID
	for i := range 5 {
		ids = append(ids, s.save(t, repo, fmt.Sprintf("conv %d", i), s.chunks(1, nil)))
		// Distinct creation times.
		time.Sleep(2 * time.Millisecond)
	}

	all, err := repo.ListConversations(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, conv := range all {
		assert.Equal(t, ids[4-i], conv.ID, "newest first")
		assert.Empty(t, conv.Chunks)
	}

	page, err := repo.ListConversations(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)

	beyond, err := repo.ListConversations(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func (s *suite) testListInvalid(t *testing.T) {
	repo := s.newRepo(t)
	ctx := context.Background()

	_, err := repo.ListConversations(ctx, -1, 5)
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = repo.ListConversations(ctx, 0, 0)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func (s *suite) testDeleteCascades(t *testing.T) {
	repo := s.newRepo(t)
	ctx := context.Background()

	keep := s.save(t, repo, "keep", s.chunks(2, func(i int) []float32 { return s.vec(1) }))
	drop := s.save(t, repo, "drop", s.chunks(3, func(i int) []float32 { return s.vec(1) }))

	require.NoError(t, repo.DeleteConversation(ctx, drop))

	_, err := repo.GetConversation(ctx, drop)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 2, s.countChunks(t, repo))

	results, err := repo.SimilaritySearch(ctx, s.vec(1), 10, 0)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, keep, r.Chunk.ConversationID)
	}

	list, err := repo.ListConversations(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keep, list[0].ID)
}

func (s *suite) testDeleteNotFound(t *testing.T) {
	repo := s.newRepo(t)
	ctx := context.Background()

	err := repo.DeleteConversation(ctx, 31337)
	assert.ErrorIs(t, err, core.ErrNotFound)

	id := s.save(t, repo, "once", nil)
	require.NoError(t, repo.DeleteConversation(ctx, id))
	assert.ErrorIs(t, repo.DeleteConversation(ctx, id), core.ErrNotFound)
}

func (s *suite) testSearchEmptyStore(t *testing.T) {
	repo := s.newRepo(t)

	results, err := repo.SimilaritySearch(context.Background(), s.vec(1, 2, 3), 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Chunks without embeddings behave like an empty store.
	s.save(t, repo, "unembedded", s.chunks(3, nil))
	results, err = repo.SimilaritySearch(context.Background(), s.vec(1, 2, 3), 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func (s *suite) testSearchTopK(t *testing.T) {
	repo := s.newRepo(t)

	// Chunk i sits at distance i from the query.
	id := s.save(t, repo, "ten chunks", s.chunks(10, func(i int) []float32 { return s.vec(float32(i), 1) }))

	results, err := repo.SimilaritySearch(context.Background(), s.vec(0, 1), 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 5)

	for i, r := range results {
		assert.Equal(t, i, r.Chunk.OrderIndex)
		assert.Equal(t, id, r.Chunk.ConversationID)
		assert.Equal(t, "ten chunks", r.ConversationTitle)
		assert.NotEmpty(t, r.Chunk.Text)
		assert.InDelta(t, float32(i), r.Distance, 1e-4)
		assert.InDelta(t, 1/(1+float32(i)), r.Score, 1e-4)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
		}
	}
}

// Index-backed stores must still fill topK when it exceeds their default candidate pool.
func (s *suite) testSearchLargeTopK(t *testing.T) {
	repo := s.newRepo(t)
	s.save(t, repo, "sixty chunks", s.chunks(60, func(i int) []float32 { return s.vec(float32(i), 1) }))

	results, err := repo.SimilaritySearch(context.Background(), s.vec(0, 1), 45, 0)
	require.NoError(t, err)
	require.Len(t, results, 45)
	for i, r := range results {
		assert.Equal(t, i, r.Chunk.OrderIndex)
	}
}

func (s *suite) testSearchSkipsUnembedded(t *testing.T) {
	repo := s.newRepo(t)

	s.save(t, repo, "mixed", s.chunks(4, func(i int) []float32 {
		if i%2 == 0 {
			return nil
		}
		return s.vec(float32(i), 1)
	}))

	results, err := repo.SimilaritySearch(context.Background(), s.vec(0, 1), 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Chunk.OrderIndex)
	assert.Equal(t, 3, results[1].Chunk.OrderIndex)
}

func (s *suite) testSearchThreshold(t *testing.T) {
	repo := s.newRepo(t)

	s.save(t, repo, "spread", s.chunks(5, func(i int) []float32 { return s.vec(float32(i), 1) }))

	// Scores are 1, 0.5, 0.33, 0.25, 0.2; threshold 0.3 keeps three even with topK 5.
	results, err := repo.SimilaritySearch(context.Background(), s.vec(0, 1), 5, 0.3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, float32(0.3))
	}

	results, err = repo.SimilaritySearch(context.Background(), s.vec(0, 1), 5, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Chunk.OrderIndex)
}

func (s *suite) testSearchDegradedLast(t *testing.T) {
	repo := s.newRepo(t)

	// Chunk 0 holds the zero placeholder and sits closer to the query than chunk 1.
	s.save(t, repo, "partly failed", s.chunks(2, func(i int) []float32 {
		if i == 0 {
			return s.vec()
		}
		return s.vec(2.5)
	}))

	results, err := repo.SimilaritySearch(context.Background(), s.vec(1), 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Chunk.OrderIndex)
	assert.False(t, results[0].Degraded)
	assert.Equal(t, 0, results[1].Chunk.OrderIndex)
	assert.True(t, results[1].Degraded)
	assert.InDelta(t, float32(1), results[1].Distance, 1e-4)
}

func (s *suite) testSearchTieBreak(t *testing.T) {
	repo := s.newRepo(t)
	ctx := context.Background()

	same := func(int) []float32 { return s.vec(1, 1) }
	first := s.save(t, repo, "first", s.chunks(2, same))
	second := s.save(t, repo, "second", s.chunks(2, same))

	results, err := repo.SimilaritySearch(ctx, s.vec(0, 0), 4, 0)
	require.NoError(t, err)
	require.Len(t, results, 4)

	type key struct {
		conv  core.ID
		order int
	}
	var got []key
	for _, r := range results {
		got = append(got, key{r.Chunk.ConversationID, r.Chunk.OrderIndex})
	}
	lo, hi := min(first, second), max(first, second)
	assert.Equal(t, []key{{lo, 0}, {hi, 0}, {lo, 1}, {hi, 1}}, got)

	// Repeated queries over unchanged data are identical.
	again, err := repo.SimilaritySearch(ctx, s.vec(0, 0), 4, 0)
	require.NoError(t, err)
	for i := range results {
		assert.Equal(t, results[i].Chunk.ID, again[i].Chunk.ID)
	}
}

func (s *suite) testSearchInvalid(t *testing.T) {
	repo := s.newRepo(t)
	ctx := context.Background()

	_, err := repo.SimilaritySearch(ctx, s.vec(1), 0, 0)
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = repo.SimilaritySearch(ctx, s.vec(1), 3, 1.5)
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = repo.SimilaritySearch(ctx, nil, 3, 0)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func (s *suite) testUpdateEmbeddings(t *testing.T) {
	repo := s.newRepo(t)
	ctx := context.Background()

	chunks := s.chunks(3, nil)
	id := s.save(t, repo, "later", chunks)

	update := map[core.ID][]float32{
		chunks[0].ID: s.vec(3),
		chunks[2].ID: s.vec(1),
	}
	require.NoError(t, repo.UpdateEmbeddings(ctx, update))
	require.NoError(t, repo.UpdateEmbeddings(ctx, nil))

	got, err := repo.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.InDeltaSlice(t, s.vec(3), got.Chunks[0].Embedding, 1e-6)
	assert.Empty(t, got.Chunks[1].Embedding)
	assert.InDeltaSlice(t, s.vec(1), got.Chunks[2].Embedding, 1e-6)
	assert.Equal(t, chunks[1].Text, got.Chunks[1].Text)

	results, err := repo.SimilaritySearch(ctx, s.vec(0), 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, chunks[2].ID, results[0].Chunk.ID)
	assert.Equal(t, chunks[0].ID, results[1].Chunk.ID)
}

func (s *suite) testUpdateEmbeddingsUnknownChunk(t *testing.T) {
	repo := s.newRepo(t)
	ctx := context.Background()

	chunks := s.chunks(1, nil)
	id := s.save(t, repo, "partial", chunks)

	known, unknown := chunks[0].ID, chunks[0].ID+1000
	err := repo.UpdateEmbeddings(ctx, map[core.ID][]float32{
		known:   s.vec(1),
		unknown: s.vec(2),
	})
	assert.ErrorIs(t, err, core.ErrNotFound)

	got, err := repo.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.Chunks[0].Embedding, "nothing written on failure")
}

func (s *suite) testForEachChunkBatch(t *testing.T) {
	repo := s.newRepo(t)
	ctx := context.Background()

	a := s.chunks(4, nil)
	b := s.chunks(3, nil)
	s.save(t, repo, "a", a)
	s.save(t, repo, "b", b)

	var ids []core.ID
	var sizes []int
	err := repo.ForEachChunkBatch(ctx, 0, 3, func(batch []core.Chunk) error {
		sizes = append(sizes, len(batch))
		for _, c := range batch {
			ids = append(ids, c.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)
	require.Len(t, ids, 7)
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i], "ascending chunk ID order")
	}

	var resumed []core.ID
	err = repo.ForEachChunkBatch(ctx, ids[4], 10, func(batch []core.Chunk) error {
		for _, c := range batch {
			resumed = append(resumed, c.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ids[5:], resumed)

	stop := errors.New("stop")
	calls := 0
	err = repo.ForEachChunkBatch(ctx, 0, 2, func([]core.Chunk) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)

	err = repo.ForEachChunkBatch(ctx, 0, 0, func([]core.Chunk) error { return nil })
	assert.ErrorIs(t, err, core.ErrValidation)
}

func (s *suite) testCheckpoints(t *testing.T) {
	repo := s.newRepo(t)
	ctx := context.Background()

	cp, err := repo.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, repo.SaveCheckpoint(ctx, &core.Checkpoint{Name: "reembed", LastID: 10}))
	require.NoError(t, repo.SaveCheckpoint(ctx, &core.Checkpoint{Name: "reembed", LastID: 25}))
	require.NoError(t, repo.SaveCheckpoint(ctx, &core.Checkpoint{Name: "other", LastID: 1}))

	cp, err = repo.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "reembed", cp.Name)
	assert.Equal(t, core.ID(25), cp.LastID)
	assert.False(t, cp.UpdatedAt.IsZero())
}

func (s *suite) testConcurrentSaves(t *testing.T) {
	repo := s.newRepo(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv := &core.Conversation{Title: fmt.Sprintf("worker %d", i)}
			_, err := repo.SaveConversation(ctx, conv, s.chunks(3, func(int) []float32 { return s.vec(float32(i)) }))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	list, err := repo.ListConversations(ctx, 0, 100)
	require.NoError(t, err)
	assert.Len(t, list, workers)
	assert.Equal(t, workers*3, s.countChunks(t, repo))
}
