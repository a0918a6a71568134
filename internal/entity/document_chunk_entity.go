package entity

import (
	"time"

	"github.com/google/uuid"
)

type DocumentChunk struct {
	Id         uuid.UUID
	DocumentId uuid.UUID
	ChunkIndex int
	Content    string
	Embedding  []float32
	TokenCount *int
	Length     int
	CreatedAt  time.Time
}
