package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Document struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId         uuid.UUID      `gorm:"type:uuid;not null;index"`
	Name           string         `gorm:"type:varchar(255);not null"`
	Path           string         `gorm:"type:text;not null"`
	Status         string         `gorm:"type:varchar(20);not null;default:pending;index"`
	ErrorMessage   *string        `gorm:"type:text"`
	NumChunks      int            `gorm:"default:0"`
	EmbeddingModel *string        `gorm:"type:varchar(100)"`
	FileHash       string         `gorm:"type:varchar(64);not null;index"`
	FileSize       int64          `gorm:"not null"`
	Category       *string        `gorm:"type:varchar(100)"`
	Tags           datatypes.JSON `gorm:"type:jsonb"`
	ProcessedAt    *time.Time
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime"`
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (Document) TableName() string {
	return "documents"
}
