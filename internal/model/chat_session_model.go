package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ChatSession struct {
	Id               uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId           uuid.UUID      `gorm:"type:uuid;not null;index"`
	DocumentId       *uuid.UUID     `gorm:"type:uuid;index"`
	Title            string         `gorm:"type:text;not null"`
	Provider         string         `gorm:"type:varchar(50);not null"`
	Model            string         `gorm:"type:varchar(100);not null"`
	Temperature      float64        `gorm:"default:0.7"`
	MaxTokens        int            `gorm:"default:0"`
	MaxContextTokens int            `gorm:"default:4000"`
	MessageCount     int            `gorm:"default:0"`
	LastActivityAt   *time.Time     `gorm:"index"`
	DocumentIds      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt        time.Time      `gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime"`
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}
