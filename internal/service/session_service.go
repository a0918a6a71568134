package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"veritasai-be/internal/apperr"
	"veritasai-be/internal/dto"
	"veritasai-be/internal/entity"
	"veritasai-be/internal/repository/specification"
	"veritasai-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

type ISessionService interface {
	Create(ctx context.Context, userId uuid.UUID, req *dto.CreateSessionRequest) (*dto.SessionResponse, error)
	List(ctx context.Context, userId uuid.UUID) ([]*dto.SessionResponse, error)
	Show(ctx context.Context, userId, id uuid.UUID) (*dto.SessionResponse, error)
	Update(ctx context.Context, userId, id uuid.UUID, req *dto.UpdateSessionRequest) (*dto.SessionResponse, error)
	Delete(ctx context.Context, userId, id uuid.UUID) error
	Messages(ctx context.Context, userId, id uuid.UUID) ([]*dto.ChatMessageResponse, error)
}

type sessionService struct {
	uowFactory unitofwork.RepositoryFactory
	registry   ProviderRegistry
	defaults   ChatDefaults
}

func NewSessionService(uowFactory unitofwork.RepositoryFactory, registry ProviderRegistry, defaults ChatDefaults) ISessionService {
	return &sessionService{
		uowFactory: uowFactory,
		registry:   registry,
		defaults:   defaults,
	}
}

func (s *sessionService) Create(ctx context.Context, userId uuid.UUID, req *dto.CreateSessionRequest) (*dto.SessionResponse, error) {
	if req.DocumentId != nil && len(req.DocumentIds) > 0 {
		return nil, fmt.Errorf("%w: document_id and document_ids are exclusive", apperr.ErrInvalidInput)
	}

	provider, err := s.provider(req.Provider)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if req.DocumentId != nil {
		if err := s.checkOwned(ctx, uow, userId, []uuid.UUID{*req.DocumentId}); err != nil {
			return nil, err
		}
	}
	if err := s.checkOwned(ctx, uow, userId, req.DocumentIds); err != nil {
		return nil, err
	}

	session := &entity.ChatSession{
		Id:               uuid.New(),
		UserId:           userId,
		DocumentId:       req.DocumentId,
		Title:            strings.TrimSpace(req.Title),
		Provider:         provider,
		Model:            req.Model,
		Temperature:      s.defaults.Temperature,
		MaxTokens:        req.MaxTokens,
		MaxContextTokens: req.MaxContextTokens,
		DocumentIds:      uniqueIds(req.DocumentIds),
		CreatedAt:        time.Now(),
	}
	if session.Title == "" {
		session.Title = entity.DefaultSessionTitle
	}
	if req.Temperature != nil {
		session.Temperature = *req.Temperature
	}
	if session.MaxContextTokens == 0 {
		session.MaxContextTokens = s.defaults.MaxContextTokens
	}

	if err := uow.ChatSessionRepository().Create(ctx, session); err != nil {
		return nil, err
	}
	return toSessionResponse(session), nil
}

func (s *sessionService) List(ctx context.Context, userId uuid.UUID) ([]*dto.SessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	sessions, err := uow.ChatSessionRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.SessionResponse, len(sessions))
	for i, session := range sessions {
		res[i] = toSessionResponse(session)
	}
	return res, nil
}

func (s *sessionService) Show(ctx context.Context, userId, id uuid.UUID) (*dto.SessionResponse, error) {
	session, err := s.find(ctx, s.uowFactory.NewUnitOfWork(ctx), userId, id)
	if err != nil {
		return nil, err
	}
	return toSessionResponse(session), nil
}

func (s *sessionService) Update(ctx context.Context, userId, id uuid.UUID, req *dto.UpdateSessionRequest) (*dto.SessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := s.find(ctx, uow, userId, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		if title := strings.TrimSpace(*req.Title); title != "" {
			session.Title = title
		}
	}
	if req.Provider != nil {
		provider, err := s.provider(*req.Provider)
		if err != nil {
			return nil, err
		}
		if provider != session.Provider && req.Model == nil {
			session.Model = ""
		}
		session.Provider = provider
	}
	if req.Model != nil {
		session.Model = *req.Model
	}
	if req.Temperature != nil {
		session.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		session.MaxTokens = *req.MaxTokens
	}
	if req.MaxContextTokens != nil {
		session.MaxContextTokens = *req.MaxContextTokens
	}
	if req.DocumentIds != nil {
		if session.DocumentId != nil {
			return nil, fmt.Errorf("%w: session is bound to a single document", apperr.ErrInvalidInput)
		}
		if err := s.checkOwned(ctx, uow, userId, *req.DocumentIds); err != nil {
			return nil, err
		}
		session.DocumentIds = uniqueIds(*req.DocumentIds)
	}

	now := time.Now()
	session.UpdatedAt = &now
	if err := uow.ChatSessionRepository().Update(ctx, session); err != nil {
		return nil, err
	}
	return toSessionResponse(session), nil
}

func (s *sessionService) Delete(ctx context.Context, userId, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := s.find(ctx, uow, userId, id)
	if err != nil {
		return err
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().DeleteBySessionId(ctx, session.Id); err != nil {
		return err
	}
	if err := uow.ChatSessionRepository().Delete(ctx, session.Id); err != nil {
		return err
	}
	return uow.Commit()
}

func (s *sessionService) Messages(ctx context.Context, userId, id uuid.UUID) ([]*dto.ChatMessageResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := s.find(ctx, uow, userId, id)
	if err != nil {
		return nil, err
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.BySessionID{SessionID: session.Id},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, err
	}
	return toMessageResponses(messages), nil
}

func (s *sessionService) find(ctx context.Context, uow unitofwork.UnitOfWork, userId, id uuid.UUID) (*entity.ChatSession, error) {
	session, err := uow.ChatSessionRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperr.ErrNotFound
	}
	return session, nil
}

// provider normalizes name and rejects providers the registry does not know.
func (s *sessionService) provider(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		name = s.defaults.Provider
	}
	cfg, err := s.registry.Resolve(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return cfg.Name, nil
}

func (s *sessionService) checkOwned(ctx context.Context, uow unitofwork.UnitOfWork, userId uuid.UUID, ids []uuid.UUID) error {
	ids = uniqueIds(ids)
	if len(ids) == 0 {
		return nil
	}
	count, err := uow.DocumentRepository().Count(ctx,
		specification.ByIDs{IDs: ids},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return err
	}
	if int(count) != len(ids) {
		return fmt.Errorf("document: %w", apperr.ErrNotFound)
	}
	return nil
}

func uniqueIds(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func toSessionResponse(s *entity.ChatSession) *dto.SessionResponse {
	ids := s.DocumentIds
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return &dto.SessionResponse{
		Id:               s.Id,
		Title:            s.Title,
		Provider:         s.Provider,
		Model:            s.Model,
		Temperature:      s.Temperature,
		MaxTokens:        s.MaxTokens,
		MaxContextTokens: s.MaxContextTokens,
		MessageCount:     s.MessageCount,
		LastActivityAt:   s.LastActivityAt,
		DocumentId:       s.DocumentId,
		DocumentIds:      ids,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}
