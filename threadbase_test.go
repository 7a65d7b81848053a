package threadbase

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/poiesic/threadbase/ai/mock"
	"github.com/poiesic/threadbase/config"
	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/ingestion"
	"github.com/poiesic/threadbase/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Path = config.MemoryPath
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimension = testDim
	cfg.Embedding.Retry.MaxRetries = 0
	cfg.Chunking.MaxChars = 200
	return cfg
}

func openTest(t *testing.T, cfg *config.Config, opts ...Option) *Database {
	t.Helper()
	db, err := Open(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func transcript() *ingestion.Request {
	at := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	return &ingestion.Request{
		Title:     "Cache eviction",
		SourceURL: "https://chat.example.com/c/7",
		Messages: []core.Message{
			{Text: "Why are entries vanishing from the cache?", AuthorName: "ana", AuthorType: core.AuthorTypeHuman, Timestamp: at},
			{Text: "The TTL is one minute and the admission policy rejects cold keys.", AuthorName: "helper", AuthorType: core.AuthorTypeAssistant, Timestamp: at.Add(time.Minute)},
			{Text: "Can I raise the TTL?", AuthorName: "ana", AuthorType: core.AuthorTypeHuman, Timestamp: at.Add(2 * time.Minute)},
			{Text: "Yes, set cache.ttl in the config file.", AuthorName: "helper", AuthorType: core.AuthorTypeAssistant, Timestamp: at.Add(3 * time.Minute)},
		},
	}
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(nil)
	assert.ErrorIs(t, err, ErrConfigRequired)

	cfg := testConfig()
	cfg.Chunking.MaxChars = 0
	_, err = Open(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg = testConfig()
	cfg.Embedding.Provider = "word2vec"
	_, err = Open(cfg)
	assert.Error(t, err)
}

func TestDatabase_IngestSearchDelete(t *testing.T) {
	db := openTest(t, testConfig())
	ctx := context.Background()

	res, err := db.Ingest(ctx, transcript())
	require.NoError(t, err)
	assert.Equal(t, 4, res.ChunksCreated)

	conv, err := db.GetConversation(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "Cache eviction", conv.Title)
	require.Len(t, conv.Chunks, 4)
	for i, c := range conv.Chunks {
		assert.Equal(t, i, c.OrderIndex)
		assert.Len(t, c.Embedding, testDim)
	}

	list, err := db.ListConversations(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Chunks)

	hits, err := db.Search(ctx, "Can I raise the TTL?", 3, 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Can I raise the TTL?", hits[0].Text)
	assert.Equal(t, "Cache eviction", hits[0].ConversationTitle)
	assert.InDelta(t, 1.0, hits[0].RelevanceScore, 1e-5)

	// Zero topK selects the configured default.
	hits, err = db.Search(ctx, "ttl", 0, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 4)

	require.NoError(t, db.DeleteConversation(ctx, res.ConversationID))
	_, err = db.GetConversation(ctx, res.ConversationID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, db.DeleteConversation(ctx, res.ConversationID), core.ErrNotFound)

	hits, err = db.Search(ctx, "Can I raise the TTL?", 3, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDatabase_SearchThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.Search.MinRelevance = 1
	db := openTest(t, cfg)
	ctx := context.Background()

	_, err := db.Ingest(ctx, transcript())
	require.NoError(t, err)

	// Only exact matches reach the configured minimum.
	hits, err := db.Search(ctx, "ttl", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = db.Search(ctx, "ttl", 0, NoThreshold)
	require.NoError(t, err)
	assert.Len(t, hits, 4)

	hits, err = db.Search(ctx, "ttl", 0, 0.1)
	require.NoError(t, err)
	assert.Len(t, hits, 4)

	_, err = db.Search(ctx, "ttl", 0, -0.5)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestDatabase_ProviderFailureFallsBack(t *testing.T) {
	failing := mock.NewMockEmbedder(testDim)
	failing.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}

	t.Run("hashing fallback", func(t *testing.T) {
		db := openTest(t, testConfig(), WithEmbedder(failing))
		ctx := context.Background()

		res, err := db.Ingest(ctx, transcript())
		require.NoError(t, err)

		conv, err := db.GetConversation(ctx, res.ConversationID)
		require.NoError(t, err)
		for _, c := range conv.Chunks {
			require.Len(t, c.Embedding, testDim)
			assert.NotEqual(t, make([]float32, testDim), c.Embedding)
		}
	})

	t.Run("zero vectors without fallback", func(t *testing.T) {
		cfg := testConfig()
		cfg.Embedding.Fallback = config.FallbackNone
		db := openTest(t, cfg, WithEmbedder(failing))
		ctx := context.Background()

		res, err := db.Ingest(ctx, transcript())
		require.NoError(t, err)

		conv, err := db.GetConversation(ctx, res.ConversationID)
		require.NoError(t, err)
		for _, c := range conv.Chunks {
			assert.Equal(t, make([]float32, testDim), c.Embedding)
		}

		hits, err := db.Search(ctx, "anything", 2, 0)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		for _, h := range hits {
			assert.True(t, h.Degraded)
		}
	})
}

func TestDatabase_DimensionNormalized(t *testing.T) {
	wide := mock.NewMockEmbedder(testDim * 2)
	db := openTest(t, testConfig(), WithEmbedder(wide))
	ctx := context.Background()

	res, err := db.Ingest(ctx, transcript())
	require.NoError(t, err)

	conv, err := db.GetConversation(ctx, res.ConversationID)
	require.NoError(t, err)
	for _, c := range conv.Chunks {
		assert.Len(t, c.Embedding, testDim)
	}
}

func TestDatabase_Reembed(t *testing.T) {
	db := openTest(t, testConfig())
	ctx := context.Background()

	_, err := db.Ingest(ctx, transcript())
	require.NoError(t, err)

	var progress bytes.Buffer
	stats, err := db.Reembed(ctx, nil, &progress)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Processed)
	assert.Contains(t, progress.String(), "Reembedding complete")
}

func TestDatabase_SQLitePersists(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = config.BackendSQLite
	cfg.Storage.Path = filepath.Join(t.TempDir(), "threadbase.sqlite")
	ctx := context.Background()

	db, err := Open(cfg)
	require.NoError(t, err)
	res, err := db.Ingest(ctx, transcript())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db = openTest(t, cfg)
	conv, err := db.GetConversation(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Len(t, conv.Chunks, 4)

	hits, err := db.Search(ctx, "Why are entries vanishing from the cache?", 1, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].OrderIndex)
}

func TestDatabase_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Embedding.Cache.Type = config.CacheRedis
	cfg.Embedding.Cache.Addr = mr.Addr()

	primary := mock.NewMockEmbedder(testDim)
	db := openTest(t, cfg, WithEmbedder(primary))
	ctx := context.Background()

	_, err := db.Ingest(ctx, transcript())
	require.NoError(t, err)
	calls := primary.CallCount()
	require.Positive(t, calls)

	// The same texts are served from the cache.
	_, err = db.Ingest(ctx, transcript())
	require.NoError(t, err)
	assert.Equal(t, calls, primary.CallCount())
	assert.NotEmpty(t, mr.Keys())
}

func TestDatabase_WithRepository(t *testing.T) {
	repo, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	defer repo.Close()

	db, err := Open(testConfig(), WithRepository(repo), WithLogger(nil))
	require.NoError(t, err)
	assert.Same(t, repo, db.Repository())
	assert.NotNil(t, db.Embedder())
	assert.Equal(t, testDim, db.Config().Embedding.Dimension)

	res, err := db.Ingest(context.Background(), transcript())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// The caller's repository stays open.
	_, err = repo.GetConversation(context.Background(), res.ConversationID)
	assert.NoError(t, err)
}
