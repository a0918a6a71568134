package dto

import (
	"time"

	"github.com/google/uuid"
)

type ChatTurnMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

// ChatTurnRequest targets either a single document or a chat session.
type ChatTurnRequest struct {
	Messages   []ChatTurnMessage `json:"messages" validate:"dive"`
	DocumentId *uuid.UUID        `json:"document_id"`
	SessionId  *uuid.UUID        `json:"session_id"`
}

type SourceDTO struct {
	DocumentId     uuid.UUID `json:"document_id"`
	DocumentName   string    `json:"document_name"`
	ChunkId        uuid.UUID `json:"chunk_id"`
	ChunkIndex     int       `json:"chunk_index"`
	RelevanceScore float64   `json:"relevance_score"`
}

// StreamEvent is one SSE data frame of a chat turn.
type StreamEvent struct {
	Content string      `json:"content,omitempty"`
	Done    bool        `json:"done,omitempty"`
	Sources []SourceDTO `json:"sources,omitempty"`
	Model   string      `json:"model,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type ChatMessageResponse struct {
	Id             uuid.UUID   `json:"id"`
	Role           string      `json:"role"`
	Content        string      `json:"content"`
	TokensUsed     *int        `json:"tokens_used,omitempty"`
	ModelUsed      *string     `json:"model_used,omitempty"`
	ResponseTimeMs *int        `json:"response_time_ms,omitempty"`
	Sources        []SourceDTO `json:"sources,omitempty"`
	IsPartial      bool        `json:"is_partial"`
	CreatedAt      time.Time   `json:"created_at"`
}

type DocumentChatHistoryResponse struct {
	DocumentId   uuid.UUID              `json:"document_id"`
	DocumentName string                 `json:"document_name"`
	Messages     []*ChatMessageResponse `json:"messages"`
}

type CreateSessionRequest struct {
	Title            string      `json:"title" validate:"max=255"`
	Provider         string      `json:"provider" validate:"max=50"`
	Model            string      `json:"model" validate:"max=100"`
	Temperature      *float64    `json:"temperature" validate:"omitempty,min=0,max=2"`
	MaxTokens        int         `json:"max_tokens" validate:"min=0"`
	MaxContextTokens int         `json:"max_context_tokens" validate:"min=0"`
	DocumentId       *uuid.UUID  `json:"document_id"`
	DocumentIds      []uuid.UUID `json:"document_ids" validate:"max=100"`
}

type UpdateSessionRequest struct {
	Title            *string      `json:"title" validate:"omitempty,max=255"`
	Provider         *string      `json:"provider" validate:"omitempty,max=50"`
	Model            *string      `json:"model" validate:"omitempty,max=100"`
	Temperature      *float64     `json:"temperature" validate:"omitempty,min=0,max=2"`
	MaxTokens        *int         `json:"max_tokens" validate:"omitempty,min=0"`
	MaxContextTokens *int         `json:"max_context_tokens" validate:"omitempty,min=0"`
	DocumentIds      *[]uuid.UUID `json:"document_ids" validate:"omitempty,max=100"`
}

type SessionResponse struct {
	Id               uuid.UUID   `json:"id"`
	Title            string      `json:"title"`
	Provider         string      `json:"provider"`
	Model            string      `json:"model"`
	Temperature      float64     `json:"temperature"`
	MaxTokens        int         `json:"max_tokens"`
	MaxContextTokens int         `json:"max_context_tokens"`
	MessageCount     int         `json:"message_count"`
	LastActivityAt   *time.Time  `json:"last_activity_at,omitempty"`
	DocumentId       *uuid.UUID  `json:"document_id,omitempty"`
	DocumentIds      []uuid.UUID `json:"document_ids"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        *time.Time  `json:"updated_at,omitempty"`
}
