package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// URLCache keeps signed document URLs in redis so repeated dashboard loads
// do not re-sign every file. Nil-safe: a nil client disables caching.
type URLCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewURLCache(client *redis.Client, ttl time.Duration) *URLCache {
	return &URLCache{client: client, ttl: ttl}
}

func (c *URLCache) Get(ctx context.Context, path string) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	url, err := c.client.Get(ctx, key(path)).Result()
	if err != nil {
		return "", false
	}
	return url, true
}

func (c *URLCache) Set(ctx context.Context, path, url string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Set(ctx, key(path), url, c.ttl)
}

func key(path string) string {
	return "signed-url:" + path
}
