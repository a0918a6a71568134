package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const DefaultCacheTTL = time.Hour

// QueryCache stores question embeddings. A miss or a failing backend is never
// an error for the caller; it just means the question gets embedded again.
type QueryCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vector []float32)
}

// CacheKey is content addressed, so racing writers store identical values.
func CacheKey(model, question string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + question))
	return "query_embedding:" + hex.EncodeToString(sum[:])
}

type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]float32, bool) { return nil, false }
func (NopCache) Set(context.Context, string, []float32)        {}

// Embedder produces a vector for a single question.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CachedEmbedder consults the cache before calling the embedder.
type CachedEmbedder struct {
	embedder Embedder
	cache    QueryCache
	model    string
}

func NewCachedEmbedder(embedder Embedder, cache QueryCache, model string) *CachedEmbedder {
	if cache == nil {
		cache = NopCache{}
	}
	return &CachedEmbedder{embedder: embedder, cache: cache, model: model}
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, question string) ([]float32, error) {
	key := CacheKey(c.model, question)
	if vec, ok := c.cache.Get(ctx, key); ok {
		return vec, nil
	}
	vec, err := c.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, vec)
	return vec, nil
}
