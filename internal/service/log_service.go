package service

import (
	"context"
	"errors"
	"time"

	"veritasai-be/internal/apperr"
	"veritasai-be/internal/dto"
	"veritasai-be/internal/pkg/logger"
)

// zap's ISO8601 encoder layout
const logTimeLayout = "2006-01-02T15:04:05.000Z0700"

type ILogService interface {
	GetSystemLogs(ctx context.Context, page, limit int, level, module string) ([]*dto.LogListResponse, error)
	GetLogDetail(ctx context.Context, logId string) (*dto.LogDetailResponse, error)
}

type logService struct {
	logger logger.ILogger
}

func NewLogService(log logger.ILogger) ILogService {
	return &logService{logger: log}
}

func (s *logService) GetSystemLogs(ctx context.Context, page, limit int, level, module string) ([]*dto.LogListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	logs, err := s.logger.GetLogs(logger.LogFilter{
		Level:  level,
		Module: module,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}

	res := make([]*dto.LogListResponse, 0, len(logs))
	for _, l := range logs {
		item := toLogListResponse(l)
		res = append(res, &item)
	}
	return res, nil
}

func (s *logService) GetLogDetail(ctx context.Context, logId string) (*dto.LogDetailResponse, error) {
	l, err := s.logger.GetLogByID(logId)
	if errors.Is(err, logger.ErrLogNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dto.LogDetailResponse{
		LogListResponse: toLogListResponse(*l),
		Details:         l.Details,
	}, nil
}

func toLogListResponse(l logger.LogEntry) dto.LogListResponse {
	ts, err := time.Parse(logTimeLayout, l.Timestamp)
	if err != nil {
		ts, _ = time.Parse(time.RFC3339, l.Timestamp)
	}
	return dto.LogListResponse{
		Id:        l.ID,
		Level:     l.Level,
		Module:    l.Module,
		Message:   l.Message,
		CreatedAt: ts,
	}
}
