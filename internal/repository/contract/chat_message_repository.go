package contract

import (
	"context"

	"veritasai-be/internal/entity"
	"veritasai-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ChatMessageRepository interface {
	Create(ctx context.Context, message *entity.ChatMessage) error
	CreateBulk(ctx context.Context, messages []*entity.ChatMessage) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	DeleteBySessionId(ctx context.Context, sessionId uuid.UUID) error
	DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error
}
