// Package redis holds the shared query embedding cache.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"veritasai-be/internal/pkg/logger"
	"veritasai-be/pkg/rag"

	goredis "github.com/redis/go-redis/v9"
)

type QueryCache struct {
	rdb    *goredis.Client
	ttl    time.Duration
	logger logger.ILogger
}

func NewQueryCache(rdb *goredis.Client, ttl time.Duration, log logger.ILogger) *QueryCache {
	if ttl <= 0 {
		ttl = rag.DefaultCacheTTL
	}
	return &QueryCache{rdb: rdb, ttl: ttl, logger: log}
}

// Get treats any backend error as a miss.
func (c *QueryCache) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.logger.Warn("QUERY_CACHE", "Redis get failed", map[string]interface{}{"error": err.Error()})
		}
		return nil, false
	}
	var vector []float32
	if err := json.Unmarshal(raw, &vector); err != nil {
		c.logger.Warn("QUERY_CACHE", "Corrupt cache entry", map[string]interface{}{"key": key, "error": err.Error()})
		return nil, false
	}
	return vector, true
}

func (c *QueryCache) Set(ctx context.Context, key string, vector []float32) {
	raw, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("QUERY_CACHE", "Redis set failed", map[string]interface{}{"error": err.Error()})
	}
}

var _ rag.QueryCache = (*QueryCache)(nil)
