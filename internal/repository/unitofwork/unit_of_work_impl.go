package unitofwork

import (
	"context"

	"veritasai-be/internal/repository/contract"
	"veritasai-be/internal/repository/implementation"

	"gorm.io/gorm"
)

type gormUnitOfWork struct {
	db *gorm.DB
	tx *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: db}
}

func (u *gormUnitOfWork) conn() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

func (u *gormUnitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return ErrTxInProgress
	}
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	u.tx = tx
	return nil
}

func (u *gormUnitOfWork) Commit() error {
	if u.tx == nil {
		return ErrNoTx
	}
	err := u.tx.Commit().Error
	u.tx = nil
	return err
}

func (u *gormUnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback().Error
	u.tx = nil
	return err
}

func (u *gormUnitOfWork) DocumentRepository() contract.DocumentRepository {
	return implementation.NewDocumentRepository(u.conn())
}

func (u *gormUnitOfWork) DocumentChunkRepository() contract.DocumentChunkRepository {
	return implementation.NewDocumentChunkRepository(u.conn())
}

func (u *gormUnitOfWork) ChatSessionRepository() contract.ChatSessionRepository {
	return implementation.NewChatSessionRepository(u.conn())
}

func (u *gormUnitOfWork) ChatMessageRepository() contract.ChatMessageRepository {
	return implementation.NewChatMessageRepository(u.conn())
}
