package cache

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/poiesic/threadbase/ai"
)

// ErrInvalidSize is returned when the cache capacity is not positive.
var ErrInvalidSize = errors.New("cache size must be positive")

// Memory is an in-process embedding cache bounded by entry count.
type Memory struct {
	cache *ristretto.Cache[string, []float32]
	ttl   time.Duration
}

var _ ai.VectorCache = (*Memory)(nil)

// NewMemory creates a cache holding roughly maxEntries vectors. A zero ttl keeps entries
// until they are evicted.
func NewMemory(maxEntries int64, ttl time.Duration) (*Memory, error) {
	if maxEntries < 1 {
		return nil, ErrInvalidSize
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Memory{cache: c, ttl: ttl}, nil
}

func (m *Memory) GetMany(_ context.Context, keys []string) ([][]float32, error) {
	out := make([][]float32, len(keys))
	for i, key := range keys {
		if v, ok := m.cache.Get(key); ok {
			out[i] = v
		}
	}
	return out, nil
}

func (m *Memory) SetMany(_ context.Context, keys []string, vectors [][]float32) error {
	for i, key := range keys {
		m.cache.SetWithTTL(key, vectors[i], 1, m.ttl)
	}
	m.cache.Wait()
	return nil
}

func (m *Memory) Close() error {
	m.cache.Close()
	return nil
}
