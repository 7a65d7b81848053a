package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/threadbase/ai"
	"github.com/poiesic/threadbase/core"
)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(host string) *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(ai.ProviderOpenAI),
		ai.WithHost(host),
		ai.WithModel("text-embedding-3-small"),
		ai.WithAPIKey("sk-test"),
		ai.WithDimension(3),
		ai.WithTimeout(2*time.Second),
	)
}

func embeddingHandler(t *testing.T, requests *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(text)), 1, 0},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}
}

func TestEmbedder_EmbedTexts(t *testing.T) {
	var requests atomic.Int32
	srv := newServer(t, embeddingHandler(t, &requests))

	e, err := newEmbedder(testConfig(srv.URL))
	require.NoError(t, err)

	input := []string{"a\nb", "ccc"}
	got, err := e.EmbedTexts(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3, 1, 0}, {3, 1, 0}}, got)
	assert.Equal(t, "a\nb", input[0], "caller input must not be modified")

	v, err := e.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1, 0}, v)
	assert.Equal(t, int32(2), requests.Load())
}

func TestEmbedder_EmptyInputSkipsNetwork(t *testing.T) {
	var requests atomic.Int32
	srv := newServer(t, embeddingHandler(t, &requests))

	e, err := newEmbedder(testConfig(srv.URL))
	require.NoError(t, err)

	got, err := e.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(0), requests.Load())
}

func TestEmbedder_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		message   string
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, "Rate limit reached", true},
		{"server error", http.StatusServiceUnavailable, "overloaded", true},
		{"bad key", http.StatusUnauthorized, "Incorrect API key provided", false},
		{"bad request", http.StatusBadRequest, "input too large", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{"message": tt.message},
				})
			})

			e, err := newEmbedder(testConfig(srv.URL))
			require.NoError(t, err)

			_, err = e.EmbedText(context.Background(), "x")
			var pe *ai.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.transient, pe.Transient)
			assert.ErrorIs(t, err, core.ErrProvider)
		})
	}
}

func TestEmbedder_Timeout(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	e, err := newEmbedder(cfg)
	require.NoError(t, err)

	_, err = e.EmbedText(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, ai.IsTransient(err), "timeouts are transient: %v", err)
}

func TestEmbedder_RateLimited(t *testing.T) {
	var requests atomic.Int32
	srv := newServer(t, embeddingHandler(t, &requests))

	cfg := testConfig(srv.URL)
	cfg.RequestsPerSecond = 1
	cfg.Burst = 1
	e, err := newEmbedder(cfg)
	require.NoError(t, err)

	_, err = e.EmbedText(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = e.EmbedText(ctx, "second")
	require.Error(t, err, "second call must wait for the limiter")
	assert.Equal(t, int32(1), requests.Load())
}

func TestNewEmbedder_InvalidConfig(t *testing.T) {
	cfg := testConfig("")
	cfg.Host = ""
	_, err := NewEmbedder(cfg)
	assert.Error(t, err)
}
