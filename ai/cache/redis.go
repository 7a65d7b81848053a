package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/poiesic/threadbase/ai"
	"github.com/poiesic/threadbase/core"
)

// Redis is an embedding cache shared through a Redis server.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ai.VectorCache = (*Redis)(nil)

// NewRedis connects to addr and verifies the connection. A zero ttl stores entries without
// expiry.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis cache: ping %s: %w", addr, err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) GetMany(ctx context.Context, keys []string) ([][]float32, error) {
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(keys))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[i] = decodeVector([]byte(s))
	}
	return out, nil
}

func (r *Redis) SetMany(ctx context.Context, keys []string, vectors [][]float32) error {
	pipe := r.client.Pipeline()
	for i, key := range keys {
		pipe.Set(ctx, key, encodeVector(vectors[i]), r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, core.VectorMUS.Size(v))
	core.VectorMUS.Marshal(v, buf)
	return buf
}

func decodeVector(buf []byte) []float32 {
	v, _, err := core.VectorMUS.Unmarshal(buf)
	if err != nil {
		return nil
	}
	return v
}
