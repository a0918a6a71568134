package contract

import (
	"context"

	"veritasai-be/internal/entity"
	"veritasai-be/internal/repository/specification"
	"veritasai-be/pkg/rag"

	"github.com/google/uuid"
)

type DocumentChunkRepository interface {
	CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error
	DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DocumentChunk, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	UpdateTokenCount(ctx context.Context, id uuid.UUID, tokenCount int) error
	SearchSimilar(ctx context.Context, vector []float32, documentIds []uuid.UUID, limit int) ([]rag.ScoredChunk, error)
}
