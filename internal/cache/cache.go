package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// MediumTTL is the default lifetime for cached derived fields.
	MediumTTL = time.Hour
)

// Fields cached per entity. Keys are always built from (entity, id, field) so
// invalidation stays uniform across entities.
const (
	FieldHTML         = "html"
	FieldTags         = "tags"
	FieldContributors = "contributors"
)

// Cache stores derived, recomputable fields (rendered HTML, tag lists,
// contributor lists) in Redis. A nil *Cache is valid and disables caching,
// so callers never need to branch on availability.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(redisURL string) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: MediumTTL}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func key(entity string, id int, field string) string {
	return fmt.Sprintf("%s:%d:%s", entity, id, field)
}

// Get returns the cached value and whether it was present.
func (c *Cache) Get(ctx context.Context, entity string, id int, field string) (string, bool) {
	if c == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, key(entity, id, field)).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// Set stores a derived value with the default TTL.
func (c *Cache) Set(ctx context.Context, entity string, id int, field string, value string) {
	if c == nil {
		return
	}
	c.client.Set(ctx, key(entity, id, field), value, c.ttl)
}

// Invalidate drops the given fields for an entity. Every mutating operation
// on the entity must call this for the fields it can affect.
func (c *Cache) Invalidate(ctx context.Context, entity string, id int, fields ...string) {
	if c == nil {
		return
	}
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = key(entity, id, f)
	}
	c.client.Del(ctx, keys...)
}
