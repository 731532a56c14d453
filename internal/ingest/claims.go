package ingest

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClaims implements ClaimStore on Redis SET NX with a TTL matching the
// pipeline deadline, so a crashed node's claim expires on its own.
type RedisClaims struct {
	client *redis.Client
}

func NewRedisClaims(client *redis.Client) *RedisClaims {
	return &RedisClaims{client: client}
}

func (c *RedisClaims) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, "1", ttl).Result()
}

func (c *RedisClaims) Release(ctx context.Context, key string) {
	c.client.Del(ctx, key)
}
