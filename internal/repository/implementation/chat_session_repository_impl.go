package implementation

import (
	"context"
	"errors"

	"veritasai-be/internal/entity"
	"veritasai-be/internal/mapper"
	"veritasai-be/internal/model"
	"veritasai-be/internal/repository/contract"
	"veritasai-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type chatSessionRepository struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatSessionRepository(db *gorm.DB) contract.ChatSessionRepository {
	return &chatSessionRepository{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *chatSessionRepository) query(ctx context.Context, specs []specification.Specification) *gorm.DB {
	db := r.db.WithContext(ctx).Model(&model.ChatSession{})
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *chatSessionRepository) Create(ctx context.Context, session *entity.ChatSession) error {
	m := r.mapper.ChatSessionToModel(session)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*session = *r.mapper.ChatSessionToEntity(m)
	return nil
}

// Update writes every column, including zero values such as a cleared model.
func (r *chatSessionRepository) Update(ctx context.Context, session *entity.ChatSession) error {
	m := r.mapper.ChatSessionToModel(session)
	res := r.db.WithContext(ctx).Model(m).Select("*").Omit("created_at").Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	*session = *r.mapper.ChatSessionToEntity(m)
	return nil
}

// Delete is a soft delete; messages of the session are removed by the caller.
func (r *chatSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.ChatSession{}, "id = ?", id).Error
}

func (r *chatSessionRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatSession, error) {
	var m model.ChatSession
	if err := r.query(ctx, specs).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ChatSessionToEntity(&m), nil
}

func (r *chatSessionRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatSession, error) {
	var rows []*model.ChatSession
	if err := r.query(ctx, specs).Find(&rows).Error; err != nil {
		return nil, err
	}
	sessions := make([]*entity.ChatSession, len(rows))
	for i, m := range rows {
		sessions[i] = r.mapper.ChatSessionToEntity(m)
	}
	return sessions, nil
}
