package unitofwork

import "context"

// RepositoryFactory opens a unit of work per request or job.
type RepositoryFactory interface {
	NewUnitOfWork(ctx context.Context) UnitOfWork
}
