package implementation

import (
	"context"

	"veritasai-be/internal/entity"
	"veritasai-be/internal/mapper"
	"veritasai-be/internal/model"
	"veritasai-be/internal/repository/contract"
	"veritasai-be/internal/repository/specification"
	"veritasai-be/pkg/rag"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

const chunkInsertBatchSize = 100

type DocumentChunkRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.DocumentMapper
}

func NewDocumentChunkRepository(db *gorm.DB) contract.DocumentChunkRepository {
	return &DocumentChunkRepositoryImpl{
		db:     db,
		mapper: mapper.NewDocumentMapper(),
	}
}

func (r *DocumentChunkRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *DocumentChunkRepositoryImpl) CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	models := r.mapper.ChunksToModels(chunks)
	if err := r.db.WithContext(ctx).CreateInBatches(models, chunkInsertBatchSize).Error; err != nil {
		return err
	}
	for i, m := range models {
		*chunks[i] = *r.mapper.ChunkToEntity(m)
	}
	return nil
}

func (r *DocumentChunkRepositoryImpl) DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("document_id = ?", documentId).Delete(&model.DocumentChunk{}).Error
}

func (r *DocumentChunkRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DocumentChunk, error) {
	var models []*model.DocumentChunk
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.DocumentChunk, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ChunkToEntity(m)
	}
	return entities, nil
}

func (r *DocumentChunkRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.DocumentChunk{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *DocumentChunkRepositoryImpl) UpdateTokenCount(ctx context.Context, id uuid.UUID, tokenCount int) error {
	return r.db.WithContext(ctx).
		Model(&model.DocumentChunk{}).
		Where("id = ?", id).
		Update("token_count", tokenCount).Error
}

// SearchSimilar ranks chunks of the given documents by cosine similarity
// (1 - cosine distance). Chunks of soft-deleted documents are excluded.
func (r *DocumentChunkRepositoryImpl) SearchSimilar(ctx context.Context, vector []float32, documentIds []uuid.UUID, limit int) ([]rag.ScoredChunk, error) {
	if len(documentIds) == 0 || len(vector) == 0 {
		return []rag.ScoredChunk{}, nil
	}
	if limit <= 0 {
		limit = rag.DefaultTopK
	}

	type result struct {
		model.DocumentChunk
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(vector)

	err := r.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.*, 1 - (document_chunks.embedding <=> ?) as similarity", queryVector).
		Joins("JOIN documents ON documents.id = document_chunks.document_id").
		Where("document_chunks.document_id IN ?", documentIds).
		Where("documents.deleted_at IS NULL").
		Order("similarity DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]rag.ScoredChunk, len(results))
	for i, res := range results {
		scored[i] = rag.ScoredChunk{
			ID:         res.Id,
			DocumentID: res.DocumentId,
			ChunkIndex: res.ChunkIndex,
			Content:    res.Content,
			TokenCount: res.TokenCount,
			Similarity: res.Similarity,
		}
	}
	return scored, nil
}
