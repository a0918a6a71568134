package implementation

import (
	"context"

	"veritasai-be/internal/entity"
	"veritasai-be/internal/repository/contract"
	"veritasai-be/pkg/rag"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PgVectorIndex searches the document_chunks table. Chunks are written and
// removed by the chunk repository, so Index and DeleteDocument do nothing.
type PgVectorIndex struct {
	db *gorm.DB
}

func NewPgVectorIndex(db *gorm.DB) contract.ChunkIndex {
	return &PgVectorIndex{db: db}
}

func (p *PgVectorIndex) SearchSimilar(ctx context.Context, vector []float32, documentIds []uuid.UUID, limit int) ([]rag.ScoredChunk, error) {
	return NewDocumentChunkRepository(p.db).SearchSimilar(ctx, vector, documentIds, limit)
}

func (p *PgVectorIndex) Index(context.Context, []*entity.DocumentChunk) error {
	return nil
}

func (p *PgVectorIndex) DeleteDocument(context.Context, uuid.UUID) error {
	return nil
}
