package entity

import (
	"time"

	"github.com/google/uuid"

	"veritasai-be/internal/apperr"
)

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleSystem    = "system"
)

type MessageSource struct {
	DocumentId     uuid.UUID `json:"document_id"`
	DocumentName   string    `json:"document_name"`
	ChunkId        uuid.UUID `json:"chunk_id"`
	ChunkIndex     int       `json:"chunk_index"`
	RelevanceScore float64   `json:"relevance_score"`
}

// ChatMessage belongs to exactly one of a session or a document.
type ChatMessage struct {
	Id             uuid.UUID
	UserId         uuid.UUID
	SessionId      *uuid.UUID
	DocumentId     *uuid.UUID
	Role           string
	Content        string
	TokensUsed     *int
	ModelUsed      *string
	ResponseTimeMs *int
	Sources        []MessageSource
	IsPartial      bool
	CreatedAt      time.Time
}

// NewChatMessage returns apperr.ErrInvalidChatScope unless exactly one of
// sessionId and documentId is set.
func NewChatMessage(userId uuid.UUID, sessionId, documentId *uuid.UUID, role, content string) (*ChatMessage, error) {
	if err := ValidateScope(sessionId, documentId); err != nil {
		return nil, err
	}
	return &ChatMessage{
		Id:         uuid.New(),
		UserId:     userId,
		SessionId:  sessionId,
		DocumentId: documentId,
		Role:       role,
		Content:    content,
		CreatedAt:  time.Now(),
	}, nil
}

func ValidateScope(sessionId, documentId *uuid.UUID) error {
	if (sessionId == nil) == (documentId == nil) {
		return apperr.ErrInvalidChatScope
	}
	return nil
}
