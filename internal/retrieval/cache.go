package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"chaptersynth/internal/domain"
)

// RedisQueryCache is a Redis-backed QueryCache (§4.B "Caching"), grounded on
// the orchestrator's RedisDedupeStore pattern: a thin Get/Set wrapper over
// github.com/redis/go-redis/v9 with an explicit TTL per entry.
type RedisQueryCache struct {
	client *redis.Client
}

// NewRedisQueryCache connects to addr and pings it to validate the connection.
func NewRedisQueryCache(addr string) (*RedisQueryCache, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisQueryCache{client: c}, nil
}

// Get returns the cached sources for key, bit-identical to what was stored
// on Set (§4.B "cache hit is bit-identical to original response").
func (c *RedisQueryCache) Get(ctx context.Context, key string) ([]domain.Source, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var sources []domain.Source
	if err := json.Unmarshal(val, &sources); err != nil {
		return nil, false, fmt.Errorf("decode cached query response: %w", err)
	}
	return sources, true, nil
}

// Set stores sources under key with ttl.
func (c *RedisQueryCache) Set(ctx context.Context, key string, sources []domain.Source, ttl time.Duration) error {
	payload, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("encode query response: %w", err)
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

// Close closes the underlying Redis client.
func (c *RedisQueryCache) Close() error {
	return c.client.Close()
}
