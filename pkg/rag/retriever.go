// Package rag implements retrieval and context assembly for grounded chat.
package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"veritasai-be/pkg/token"
)

const DefaultTopK = 15

// Scope limits retrieval to a set of documents.
type Scope struct {
	DocumentIDs []uuid.UUID
}

func (s Scope) Empty() bool {
	return len(s.DocumentIDs) == 0
}

// ScoredChunk is a chunk returned by similarity search. Similarity is
// 1 - cosine distance, so higher is closer.
type ScoredChunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Content    string
	TokenCount *int
	Similarity float64
}

// Tokens returns the stored token count when present, otherwise an estimate.
func (c ScoredChunk) Tokens() int {
	if c.TokenCount != nil && *c.TokenCount > 0 {
		return *c.TokenCount
	}
	return token.Estimate(c.Content)
}

// ChunkSearcher runs nearest neighbour search over stored chunk vectors.
type ChunkSearcher interface {
	SearchSimilar(ctx context.Context, vector []float32, documentIDs []uuid.UUID, limit int) ([]ScoredChunk, error)
}

type Retriever struct {
	searcher ChunkSearcher
	topK     int
}

func NewRetriever(searcher ChunkSearcher, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{searcher: searcher, topK: topK}
}

// Retrieve returns up to k chunks from scope ordered by descending
// similarity. k <= 0 uses the retriever's default.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, scope Scope, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		k = r.topK
	}
	if scope.Empty() || len(vector) == 0 {
		return []ScoredChunk{}, nil
	}

	chunks, err := r.searcher.SearchSimilar(ctx, vector, scope.DocumentIDs, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Similarity > chunks[j].Similarity
	})
	if len(chunks) > k {
		chunks = chunks[:k]
	}
	return chunks, nil
}
