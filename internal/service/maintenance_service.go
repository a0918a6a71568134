package service

import (
	"context"

	"veritasai-be/internal/pkg/logger"
	"veritasai-be/internal/repository/specification"
	"veritasai-be/internal/repository/unitofwork"
	"veritasai-be/pkg/token"
)

const backfillBatchSize = 500

type IMaintenanceService interface {
	// BackfillTokenCounts stores an estimate on every chunk that has no token
	// count and returns how many chunks were updated.
	BackfillTokenCounts(ctx context.Context) (int, error)
}

type maintenanceService struct {
	uowFactory unitofwork.RepositoryFactory
	batchSize  int
	logger     logger.ILogger
}

func NewMaintenanceService(uowFactory unitofwork.RepositoryFactory, log logger.ILogger) IMaintenanceService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &maintenanceService{uowFactory: uowFactory, batchSize: backfillBatchSize, logger: log}
}

func (s *maintenanceService) BackfillTokenCounts(ctx context.Context) (int, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	updated := 0
	for {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		chunks, err := uow.DocumentChunkRepository().FindAll(ctx,
			specification.MissingTokenCount{},
			specification.Pagination{Limit: s.batchSize},
		)
		if err != nil {
			return updated, err
		}
		if len(chunks) == 0 {
			break
		}
		for _, c := range chunks {
			if err := uow.DocumentChunkRepository().UpdateTokenCount(ctx, c.Id, token.Estimate(c.Content)); err != nil {
				return updated, err
			}
			updated++
		}
		s.logger.Info("MAINTENANCE", "Backfilled token counts", map[string]interface{}{"batch": len(chunks), "total": updated})
	}
	return updated, nil
}
