package mapper

import (
	"encoding/json"
	"time"

	"veritasai-be/internal/entity"
	"veritasai-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DocumentMapper struct{}

func NewDocumentMapper() *DocumentMapper {
	return &DocumentMapper{}
}

func (m *DocumentMapper) DocumentToEntity(d *model.Document) *entity.Document {
	if d == nil {
		return nil
	}

	var deletedAt *time.Time
	if d.DeletedAt.Valid {
		t := d.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !d.UpdatedAt.IsZero() {
		t := d.UpdatedAt
		updatedAt = &t
	}

	var tags []string
	if len(d.Tags) > 0 {
		_ = json.Unmarshal(d.Tags, &tags)
	}

	return &entity.Document{
		Id:             d.Id,
		UserId:         d.UserId,
		Name:           d.Name,
		Path:           d.Path,
		Status:         entity.DocumentStatus(d.Status),
		ErrorMessage:   d.ErrorMessage,
		NumChunks:      d.NumChunks,
		EmbeddingModel: d.EmbeddingModel,
		FileHash:       d.FileHash,
		FileSize:       d.FileSize,
		Category:       d.Category,
		Tags:           tags,
		ProcessedAt:    d.ProcessedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      updatedAt,
		DeletedAt:      deletedAt,
		IsDeleted:      d.DeletedAt.Valid,
	}
}

func (m *DocumentMapper) DocumentToModel(d *entity.Document) *model.Document {
	if d == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if d.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *d.DeletedAt, Valid: true}
	} else if d.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if d.UpdatedAt != nil {
		updatedAt = *d.UpdatedAt
	}

	var tags datatypes.JSON
	if len(d.Tags) > 0 {
		tags, _ = json.Marshal(d.Tags)
	}

	return &model.Document{
		Id:             d.Id,
		UserId:         d.UserId,
		Name:           d.Name,
		Path:           d.Path,
		Status:         string(d.Status),
		ErrorMessage:   d.ErrorMessage,
		NumChunks:      d.NumChunks,
		EmbeddingModel: d.EmbeddingModel,
		FileHash:       d.FileHash,
		FileSize:       d.FileSize,
		Category:       d.Category,
		Tags:           tags,
		ProcessedAt:    d.ProcessedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      updatedAt,
		DeletedAt:      deletedAt,
	}
}

func (m *DocumentMapper) ChunkToEntity(c *model.DocumentChunk) *entity.DocumentChunk {
	if c == nil {
		return nil
	}
	return &entity.DocumentChunk{
		Id:         c.Id,
		DocumentId: c.DocumentId,
		ChunkIndex: c.ChunkIndex,
		Content:    c.Content,
		Embedding:  c.Embedding.Slice(),
		TokenCount: c.TokenCount,
		Length:     c.Length,
		CreatedAt:  c.CreatedAt,
	}
}

func (m *DocumentMapper) ChunkToModel(c *entity.DocumentChunk) *model.DocumentChunk {
	if c == nil {
		return nil
	}
	return &model.DocumentChunk{
		Id:         c.Id,
		DocumentId: c.DocumentId,
		ChunkIndex: c.ChunkIndex,
		Content:    c.Content,
		Embedding:  pgvector.NewVector(c.Embedding),
		TokenCount: c.TokenCount,
		Length:     c.Length,
		CreatedAt:  c.CreatedAt,
	}
}

func (m *DocumentMapper) ChunksToModels(chunks []*entity.DocumentChunk) []*model.DocumentChunk {
	models := make([]*model.DocumentChunk, len(chunks))
	for i, c := range chunks {
		models[i] = m.ChunkToModel(c)
	}
	return models
}
