package reembed

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/poiesic/threadbase/ai"
	"github.com/poiesic/threadbase/ai/mock"
	"github.com/poiesic/threadbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		BatchSize:      3,
		ReportInterval: 3,
		Backoff:        fastBackoff,
		Dimension:      testDim,
	}
}

func TestNewReembedder(t *testing.T) {
	repo := setupTestDB(t)
	embedder := mock.NewMockEmbedder(testDim)

	_, err := NewReembedder(nil, embedder, nil, nil)
	assert.Equal(t, ErrRepositoryRequired, err)

	_, err = NewReembedder(repo, nil, nil, nil)
	assert.Equal(t, ErrEmbedderRequired, err)

	_, err = NewReembedder(repo, embedder, &Config{BatchSize: 0, ReportInterval: 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewReembedder(repo, embedder, &Config{BatchSize: 1, ReportInterval: 1, Backoff: ai.Backoff{Factor: 0.5}}, nil)
	assert.ErrorIs(t, err, ai.ErrInvalidBackoff)

	r, err := NewReembedder(repo, embedder, nil, nil, WithLogger(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultCheckpointName, r.config.CheckpointName)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, DefaultBatchSize, config.BatchSize)
	assert.Equal(t, 100, config.ReportInterval)
	assert.Equal(t, ai.DefaultBackoff(), config.Backoff)
	assert.Equal(t, DefaultCheckpointName, config.CheckpointName)
	assert.NoError(t, config.Validate())
}

func TestReembedder_Run(t *testing.T) {
	repo := setupTestDB(t)
	chunks := seedChunks(t, repo, 10)
	ctx := context.Background()

	var buf bytes.Buffer
	embedder := mock.NewMockEmbedder(testDim)
	r, err := NewReembedder(repo, embedder, testConfig(), &buf)
	require.NoError(t, err)

	stats, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Processed)
	assert.Equal(t, 4, stats.Batches)
	assert.Zero(t, stats.ResumedAfter)
	assert.Equal(t, 4, embedder.CallCount())

	stored := storedEmbeddings(t, repo)
	for _, c := range chunks {
		assert.Equal(t, mock.Vector(c.Text, testDim), stored[c.ID])
	}

	output := buf.String()
	assert.Contains(t, output, "Starting reembedding of 10 chunks")
	assert.Contains(t, output, "10/10")
	assert.Contains(t, output, "Reembedding complete. Processed 10 chunks")

	// A completed run leaves a reset checkpoint.
	checkpoint, err := repo.LoadCheckpoint(ctx, DefaultCheckpointName)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.Zero(t, checkpoint.LastID)
}

func TestReembedder_EmptyDatabase(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewReembedder(setupTestDB(t), mock.NewMockEmbedder(testDim), testConfig(), &buf)
	require.NoError(t, err)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Processed)
	assert.Contains(t, buf.String(), "No chunks to reembed")
}

func TestReembedder_ResumesFromCheckpoint(t *testing.T) {
	repo := setupTestDB(t)
	chunks := seedChunks(t, repo, 10)
	ctx := context.Background()

	// The second batch fails permanently.
	embedder := mock.NewMockEmbedder(testDim)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if embedder.CallCount() == 2 {
			return nil, &ai.ProviderError{Provider: "mock", Err: errors.New("invalid request")}
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.Vector(text, testDim)
		}
		return out, nil
	}

	r, err := NewReembedder(repo, embedder, testConfig(), nil)
	require.NoError(t, err)

	stats, err := r.Run(ctx)
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Equal(t, 3, stats.Processed)

	checkpoint, err := repo.LoadCheckpoint(ctx, DefaultCheckpointName)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.Equal(t, chunks[2].ID, checkpoint.LastID)

	// The next run picks up after the last completed batch.
	embedder.Reset()
	var buf bytes.Buffer
	r, err = NewReembedder(repo, embedder, testConfig(), &buf)
	require.NoError(t, err)

	stats, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, chunks[2].ID, stats.ResumedAfter)
	assert.Equal(t, 7, stats.Processed)
	assert.Contains(t, buf.String(), "Resuming reembedding")
	assert.Equal(t, chunks[3].Text, embedder.Texts()[0])

	stored := storedEmbeddings(t, repo)
	for _, c := range chunks {
		assert.Len(t, stored[c.ID], testDim)
	}
}

func TestReembedder_Restart(t *testing.T) {
	repo := setupTestDB(t)
	chunks := seedChunks(t, repo, 5)
	ctx := context.Background()

	require.NoError(t, repo.SaveCheckpoint(ctx, &core.Checkpoint{Name: "switch", LastID: chunks[3].ID}))

	config := testConfig()
	config.CheckpointName = "switch"
	config.Restart = true

	r, err := NewReembedder(repo, mock.NewMockEmbedder(testDim), config, nil)
	require.NoError(t, err)

	stats, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ResumedAfter)
	assert.Equal(t, 5, stats.Processed)
}

func TestReembedder_ContextCancellation(t *testing.T) {
	repo := setupTestDB(t)
	seedChunks(t, repo, 9)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	embedder := mock.NewMockEmbedder(testDim)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		cancel()
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.Vector(text, testDim)
		}
		return out, nil
	}

	r, err := NewReembedder(repo, embedder, testConfig(), nil)
	require.NoError(t, err)

	stats, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Processed)
	assert.Equal(t, 1, embedder.CallCount())
}

func TestReembedder_DimensionMismatch(t *testing.T) {
	repo := setupTestDB(t)
	seedChunks(t, repo, 2)

	r, err := NewReembedder(repo, mock.NewMockEmbedder(testDim+1), testConfig(), nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	assert.ErrorIs(t, err, ErrEmbeddingDimension)
}
