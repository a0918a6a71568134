package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ChatMessage carries a CHECK constraint (see cmd/migrate) requiring exactly
// one of SessionId and DocumentId.
type ChatMessage struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId         uuid.UUID      `gorm:"type:uuid;not null;index"`
	SessionId      *uuid.UUID     `gorm:"type:uuid;index"`
	DocumentId     *uuid.UUID     `gorm:"type:uuid;index"`
	Role           string         `gorm:"type:varchar(20);not null"`
	Content        string         `gorm:"type:text;not null"`
	TokensUsed     *int
	ModelUsed      *string        `gorm:"type:varchar(100)"`
	ResponseTimeMs *int
	Sources        datatypes.JSON `gorm:"type:jsonb"`
	IsPartial      bool           `gorm:"default:false"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
