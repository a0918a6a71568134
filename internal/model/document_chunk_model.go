package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// DocumentChunk rows are replaced wholesale on reprocess, so they are hard deleted.
type DocumentChunk struct {
	Id         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DocumentId uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_document_chunk_order,priority:1"`
	ChunkIndex int             `gorm:"not null;uniqueIndex:idx_document_chunk_order,priority:2"`
	Content    string          `gorm:"type:text;not null"`
	Embedding  pgvector.Vector `gorm:"type:vector"`
	TokenCount *int
	Length     int       `gorm:"default:0"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}
