package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a thin TTL cache over redis. All methods are nil-safe and all
// redis failures degrade to cache misses, never to request failures.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// Get returns the cached value for key and whether it was present
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[WARN] cache get %s: %v", key, err)
		}
		return "", false
	}
	return val, true
}

// Set stores the value under key for the configured TTL
func (c *Cache) Set(ctx context.Context, key, val string) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		log.Printf("[WARN] cache set %s: %v", key, err)
	}
}

// Key derives a stable cache key from arbitrary request text
func Key(prefix, text string) string {
	sum := sha256.Sum256([]byte(text))
	return prefix + ":" + hex.EncodeToString(sum[:16])
}
