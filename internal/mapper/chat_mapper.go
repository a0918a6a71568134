package mapper

import (
	"encoding/json"
	"time"

	"veritasai-be/internal/entity"
	"veritasai-be/internal/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Session Mappers

func (m *ChatMapper) ChatSessionToEntity(s *model.ChatSession) *entity.ChatSession {
	if s == nil {
		return nil
	}

	var deletedAt *time.Time
	if s.DeletedAt.Valid {
		t := s.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		updatedAt = &t
	}

	var documentIds []uuid.UUID
	if len(s.DocumentIds) > 0 {
		_ = json.Unmarshal(s.DocumentIds, &documentIds)
	}

	return &entity.ChatSession{
		Id:               s.Id,
		UserId:           s.UserId,
		DocumentId:       s.DocumentId,
		Title:            s.Title,
		Provider:         s.Provider,
		Model:            s.Model,
		Temperature:      s.Temperature,
		MaxTokens:        s.MaxTokens,
		MaxContextTokens: s.MaxContextTokens,
		MessageCount:     s.MessageCount,
		LastActivityAt:   s.LastActivityAt,
		DocumentIds:      documentIds,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        updatedAt,
		DeletedAt:        deletedAt,
		IsDeleted:        s.DeletedAt.Valid,
	}
}

func (m *ChatMapper) ChatSessionToModel(s *entity.ChatSession) *model.ChatSession {
	if s == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if s.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *s.DeletedAt, Valid: true}
	} else if s.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if s.UpdatedAt != nil {
		updatedAt = *s.UpdatedAt
	}

	var documentIds datatypes.JSON
	if len(s.DocumentIds) > 0 {
		documentIds, _ = json.Marshal(s.DocumentIds)
	}

	return &model.ChatSession{
		Id:               s.Id,
		UserId:           s.UserId,
		DocumentId:       s.DocumentId,
		Title:            s.Title,
		Provider:         s.Provider,
		Model:            s.Model,
		Temperature:      s.Temperature,
		MaxTokens:        s.MaxTokens,
		MaxContextTokens: s.MaxContextTokens,
		MessageCount:     s.MessageCount,
		LastActivityAt:   s.LastActivityAt,
		DocumentIds:      documentIds,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        updatedAt,
		DeletedAt:        deletedAt,
	}
}

// Message Mappers

func (m *ChatMapper) ChatMessageToEntity(msg *model.ChatMessage) *entity.ChatMessage {
	if msg == nil {
		return nil
	}

	var sources []entity.MessageSource
	if len(msg.Sources) > 0 {
		_ = json.Unmarshal(msg.Sources, &sources)
	}

	return &entity.ChatMessage{
		Id:             msg.Id,
		UserId:         msg.UserId,
		SessionId:      msg.SessionId,
		DocumentId:     msg.DocumentId,
		Role:           msg.Role,
		Content:        msg.Content,
		TokensUsed:     msg.TokensUsed,
		ModelUsed:      msg.ModelUsed,
		ResponseTimeMs: msg.ResponseTimeMs,
		Sources:        sources,
		IsPartial:      msg.IsPartial,
		CreatedAt:      msg.CreatedAt,
	}
}

func (m *ChatMapper) ChatMessageToModel(msg *entity.ChatMessage) *model.ChatMessage {
	if msg == nil {
		return nil
	}

	var sources datatypes.JSON
	if len(msg.Sources) > 0 {
		sources, _ = json.Marshal(msg.Sources)
	}

	return &model.ChatMessage{
		Id:             msg.Id,
		UserId:         msg.UserId,
		SessionId:      msg.SessionId,
		DocumentId:     msg.DocumentId,
		Role:           msg.Role,
		Content:        msg.Content,
		TokensUsed:     msg.TokensUsed,
		ModelUsed:      msg.ModelUsed,
		ResponseTimeMs: msg.ResponseTimeMs,
		Sources:        sources,
		IsPartial:      msg.IsPartial,
		CreatedAt:      msg.CreatedAt,
	}
}

func (m *ChatMapper) ChatMessagesToEntities(models []*model.ChatMessage) []*entity.ChatMessage {
	entities := make([]*entity.ChatMessage, len(models))
	for i, msg := range models {
		entities[i] = m.ChatMessageToEntity(msg)
	}
	return entities
}
