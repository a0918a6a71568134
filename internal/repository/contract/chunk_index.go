package contract

import (
	"context"

	"veritasai-be/internal/entity"
	"veritasai-be/pkg/rag"

	"github.com/google/uuid"
)

// ChunkIndex is the nearest neighbour index used at query time. The pgvector
// index reads the chunk table directly; other indexes keep their own copy.
type ChunkIndex interface {
	rag.ChunkSearcher
	Index(ctx context.Context, chunks []*entity.DocumentChunk) error
	DeleteDocument(ctx context.Context, documentId uuid.UUID) error
}
