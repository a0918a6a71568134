package memory

import (
	"context"
	"time"

	"veritasai-be/pkg/rag"

	"github.com/patrickmn/go-cache"
)

// QueryCache keeps question embeddings in process.
type QueryCache struct {
	cache *cache.Cache
}

// NewQueryCache purges expired entries every 10 minutes. ttl <= 0 uses
// rag.DefaultCacheTTL.
func NewQueryCache(ttl time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = rag.DefaultCacheTTL
	}
	return &QueryCache{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (r *QueryCache) Get(_ context.Context, key string) ([]float32, bool) {
	if x, found := r.cache.Get(key); found {
		return x.([]float32), true
	}
	return nil, false
}

func (r *QueryCache) Set(_ context.Context, key string, vector []float32) {
	r.cache.Set(key, vector, cache.DefaultExpiration)
}

func (r *QueryCache) Delete(key string) {
	r.cache.Delete(key)
}

func (r *QueryCache) Len() int {
	return r.cache.ItemCount()
}

var _ rag.QueryCache = (*QueryCache)(nil)
