package unitofwork

import (
	"context"
	"errors"

	"veritasai-be/internal/repository/contract"
)

var (
	ErrTxInProgress = errors.New("transaction already started")
	ErrNoTx         = errors.New("no transaction to commit")
)

// UnitOfWork hands out repositories that share one connection or, between
// Begin and Commit, one transaction. Rollback after Commit is a no-op so it
// can always be deferred.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	DocumentRepository() contract.DocumentRepository
	DocumentChunkRepository() contract.DocumentChunkRepository
	ChatSessionRepository() contract.ChatSessionRepository
	ChatMessageRepository() contract.ChatMessageRepository
}
