package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"veritasai-be/internal/apperr"
	"veritasai-be/internal/dto"
	"veritasai-be/internal/entity"
	"veritasai-be/internal/pkg/logger"
	"veritasai-be/internal/repository/specification"
	"veritasai-be/internal/repository/unitofwork"
	"veritasai-be/pkg/llm"
	"veritasai-be/pkg/rag"
	"veritasai-be/pkg/token"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ChatDefaults apply to document chat and fill unset session settings.
type ChatDefaults struct {
	Provider         string
	Model            string
	Temperature      float64
	MaxTokens        int
	MaxContextTokens int
}

type IChatService interface {
	// Chat validates the turn and starts it. The returned channel yields
	// content fragments and ends with either a Done or an Error event. It is
	// closed when the turn is over or ctx is cancelled.
	Chat(ctx context.Context, userId uuid.UUID, req *dto.ChatTurnRequest) (<-chan dto.StreamEvent, error)
	DocumentHistory(ctx context.Context, userId, documentId uuid.UUID) (*dto.DocumentChatHistoryResponse, error)
	ClearDocumentHistory(ctx context.Context, userId, documentId uuid.UUID) error
}

type ChatDeps struct {
	UowFactory unitofwork.RepositoryFactory
	Registry   ProviderRegistry
	Embedder   rag.Embedder
	Retriever  *rag.Retriever
	Persister  IPersistQueue
	Defaults   ChatDefaults
	Logger     logger.ILogger
	Tracer     trace.Tracer
}

type chatService struct {
	uowFactory unitofwork.RepositoryFactory
	registry   ProviderRegistry
	embedder   rag.Embedder
	retriever  *rag.Retriever
	persister  IPersistQueue
	defaults   ChatDefaults
	logger     logger.ILogger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewChatService(d ChatDeps) IChatService {
	if d.Logger == nil {
		d.Logger = logger.NewNopLogger()
	}
	if d.Tracer == nil {
		d.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if d.Defaults.MaxContextTokens <= 0 {
		d.Defaults.MaxContextTokens = rag.DefaultMaxContextTokens
	}
	return &chatService{
		uowFactory: d.UowFactory,
		registry:   d.Registry,
		embedder:   d.Embedder,
		retriever:  d.Retriever,
		persister:  d.Persister,
		defaults:   d.Defaults,
		logger:     d.Logger,
		tracer:     d.Tracer,
		now:        time.Now,
	}
}

// turnPlan is everything resolved about a turn before the model is called.
type turnPlan struct {
	sessionId    *uuid.UUID
	documentId   *uuid.UUID
	scope        rag.Scope
	documentName string
	provider     string
	model        string
	temperature  float64
	maxTokens    int
	maxContext   int
}

func (s *chatService) Chat(ctx context.Context, userId uuid.UUID, req *dto.ChatTurnRequest) (<-chan dto.StreamEvent, error) {
	history := make([]llm.Message, 0, len(req.Messages))
	var userMessages []string
	for _, m := range req.Messages {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
		if m.Role == entity.ChatRoleUser {
			userMessages = append(userMessages, m.Content)
		}
	}
	if len(userMessages) == 0 {
		return nil, apperr.ErrNoUserMessage
	}
	if err := entity.ValidateScope(req.SessionId, req.DocumentId); err != nil {
		return nil, err
	}

	out := make(chan dto.StreamEvent)
	go s.turn(ctx, userId, req, history, userMessages, out)
	return out, nil
}

func (s *chatService) turn(
	ctx context.Context,
	userId uuid.UUID,
	req *dto.ChatTurnRequest,
	history []llm.Message,
	userMessages []string,
	out chan<- dto.StreamEvent,
) {
	defer close(out)

	ctx, span := s.tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("user.id", userId.String()),
	))
	defer span.End()

	start := s.now()
	question := userMessages[len(userMessages)-1]

	fail := func(stage string, err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		s.logger.Error("CHAT", "Chat turn failed", map[string]interface{}{
			"user_id": userId.String(),
			"stage":   stage,
			"error":   err.Error(),
		})
		s.send(ctx, out, dto.StreamEvent{Error: err.Error()})
	}

	plan, err := s.plan(ctx, userId, req)
	if err != nil {
		fail("resolve", err)
		return
	}
	span.SetAttributes(
		attribute.String("llm.provider", plan.provider),
		attribute.String("llm.model", plan.model),
		attribute.Int("rag.scope_size", len(plan.scope.DocumentIDs)),
	)

	candidates := []rag.ScoredChunk{}
	if !plan.scope.Empty() {
		vector, err := s.embedder.EmbedQuery(ctx, question)
		if err != nil {
			fail("embedding", fmt.Errorf("embed question: %w", err))
			return
		}
		candidates, err = s.retriever.Retrieve(ctx, vector, plan.scope, 0)
		if err != nil {
			fail("retrieval", err)
			return
		}
	}

	preamble := rag.Preamble(plan.documentName)
	budget := rag.PlanBudget(plan.maxContext, preamble, userMessages)
	assembly := rag.AssembleContext(candidates, budget, rag.DefaultSeparator)
	sources := s.sources(ctx, assembly.Chunks)

	messages := append([]llm.Message{{
		Role:    llm.RoleSystem,
		Content: rag.SystemPrompt(plan.documentName, assembly.Context),
	}}, history...)

	provider, err := s.registry.Provider(ctx, plan.provider)
	if err != nil {
		fail("provider", err)
		return
	}
	stream, err := provider.ChatStream(ctx, messages,
		llm.WithModel(plan.model),
		llm.WithTemperature(plan.temperature),
		llm.WithMaxTokens(plan.maxTokens),
	)
	if err != nil {
		fail("streaming", err)
		return
	}

	var (
		answer    strings.Builder
		streamErr error
	)
	for frame := range stream {
		if frame.Err != nil {
			streamErr = frame.Err
			break
		}
		fragment := frame.Content()
		if fragment == "" {
			continue
		}
		answer.WriteString(fragment)
		if !s.send(ctx, out, dto.StreamEvent{Content: fragment}) {
			break
		}
	}
	if streamErr == nil && ctx.Err() != nil {
		streamErr = ctx.Err()
	}

	if streamErr == nil || answer.Len() > 0 {
		s.persist(ctx, PersistJob{
			UserId:         userId,
			SessionId:      plan.sessionId,
			DocumentId:     plan.documentId,
			Question:       question,
			Answer:         answer.String(),
			Sources:        sources,
			Model:          plan.model,
			TokensUsed:     token.Estimate(answer.String()),
			ResponseTimeMs: int(s.now().Sub(start).Milliseconds()),
			IsPartial:      streamErr != nil,
			At:             start,
		})
	}

	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) {
			s.logger.Info("CHAT", "Client disconnected mid-stream", map[string]interface{}{
				"user_id": userId.String(),
				"partial": answer.Len(),
			})
			return
		}
		fail("streaming", streamErr)
		return
	}

	s.send(ctx, out, dto.StreamEvent{
		Done:    true,
		Sources: toSourceDTOs(sources),
		Model:   plan.model,
	})
}

// plan resolves scope and model settings for the turn.
func (s *chatService) plan(ctx context.Context, userId uuid.UUID, req *dto.ChatTurnRequest) (*turnPlan, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	p := &turnPlan{
		provider:    s.defaults.Provider,
		model:       s.defaults.Model,
		temperature: s.defaults.Temperature,
		maxTokens:   s.defaults.MaxTokens,
		maxContext:  s.defaults.MaxContextTokens,
	}

	if req.DocumentId != nil {
		doc, err := s.readyDocument(ctx, uow, userId, *req.DocumentId)
		if err != nil {
			return nil, err
		}
		p.documentId = &doc.Id
		p.scope = rag.Scope{DocumentIDs: []uuid.UUID{doc.Id}}
		p.documentName = doc.Name
	} else {
		session, err := uow.ChatSessionRepository().FindOne(ctx,
			specification.ByID{ID: *req.SessionId},
			specification.UserOwnedBy{UserID: userId},
		)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, fmt.Errorf("chat session %s: %w", *req.SessionId, apperr.ErrNotFound)
		}
		p.sessionId = &session.Id
		if session.Provider != "" {
			// a session model only makes sense for the session provider
			p.provider = session.Provider
			p.model = session.Model
		}
		p.temperature = session.Temperature
		if session.MaxTokens > 0 {
			p.maxTokens = session.MaxTokens
		}
		if session.MaxContextTokens > 0 {
			p.maxContext = session.MaxContextTokens
		}

		if session.DocumentId != nil {
			doc, err := s.readyDocument(ctx, uow, userId, *session.DocumentId)
			if err != nil {
				return nil, err
			}
			p.scope = rag.Scope{DocumentIDs: []uuid.UUID{doc.Id}}
			p.documentName = doc.Name
		} else {
			scope, err := s.sessionScope(ctx, uow, userId, session.DocumentIds)
			if err != nil {
				return nil, err
			}
			p.scope = scope
		}
	}

	if p.model == "" {
		cfg, err := s.registry.Resolve(p.provider)
		if err != nil {
			return nil, err
		}
		p.model = cfg.ChatModel
	}
	return p, nil
}

func (s *chatService) readyDocument(ctx context.Context, uow unitofwork.UnitOfWork, userId, documentId uuid.UUID) (*entity.Document, error) {
	doc, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByID{ID: documentId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", documentId, apperr.ErrNotFound)
	}
	if !doc.IsReady() {
		return nil, fmt.Errorf("document %s is %s: %w", doc.Name, doc.Status, apperr.ErrDocumentNotReady)
	}
	return doc, nil
}

// sessionScope is the completed subset of ids, or every completed document
// of the user when ids is empty.
func (s *chatService) sessionScope(ctx context.Context, uow unitofwork.UnitOfWork, userId uuid.UUID, ids []uuid.UUID) (rag.Scope, error) {
	specs := []specification.Specification{
		specification.UserOwnedBy{UserID: userId},
		specification.ByDocumentStatus{Status: entity.DocumentStatusCompleted},
	}
	if len(ids) > 0 {
		specs = append(specs, specification.ByIDs{IDs: ids})
	}
	docs, err := uow.DocumentRepository().FindAll(ctx, specs...)
	if err != nil {
		return rag.Scope{}, err
	}
	scope := rag.Scope{DocumentIDs: make([]uuid.UUID, 0, len(docs))}
	for _, d := range docs {
		scope.DocumentIDs = append(scope.DocumentIDs, d.Id)
	}
	return scope, nil
}

func (s *chatService) sources(ctx context.Context, chunks []rag.ScoredChunk) []entity.MessageSource {
	if len(chunks) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(chunks))
	seen := make(map[uuid.UUID]bool)
	for _, c := range chunks {
		if !seen[c.DocumentID] {
			seen[c.DocumentID] = true
			ids = append(ids, c.DocumentID)
		}
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	names, err := uow.DocumentRepository().FindNamesByIds(ctx, ids)
	if err != nil {
		s.logger.Warn("CHAT", "Failed to load source names", map[string]interface{}{"error": err.Error()})
		names = map[uuid.UUID]string{}
	}

	out := make([]entity.MessageSource, len(chunks))
	for i, c := range chunks {
		out[i] = entity.MessageSource{
			DocumentId:     c.DocumentID,
			DocumentName:   names[c.DocumentID],
			ChunkId:        c.ID,
			ChunkIndex:     c.ChunkIndex,
			RelevanceScore: c.Similarity,
		}
	}
	return out
}

func (s *chatService) persist(ctx context.Context, job PersistJob) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Enqueue(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Error("CHAT", "Failed to queue chat turn", map[string]interface{}{
			"user_id": job.UserId.String(),
			"error":   err.Error(),
		})
	}
}

// send reports false once the consumer has gone away.
func (s *chatService) send(ctx context.Context, out chan<- dto.StreamEvent, evt dto.StreamEvent) bool {
	select {
	case out <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *chatService) DocumentHistory(ctx context.Context, userId, documentId uuid.UUID) (*dto.DocumentChatHistoryResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	doc, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByID{ID: documentId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.ErrNotFound
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByDocumentID{DocumentID: documentId},
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, err
	}

	return &dto.DocumentChatHistoryResponse{
		DocumentId:   doc.Id,
		DocumentName: doc.Name,
		Messages:     toMessageResponses(messages),
	}, nil
}

func (s *chatService) ClearDocumentHistory(ctx context.Context, userId, documentId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	doc, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByID{ID: documentId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return err
	}
	if doc == nil {
		return apperr.ErrNotFound
	}
	return uow.ChatMessageRepository().DeleteByDocumentId(ctx, documentId)
}

func toSourceDTOs(sources []entity.MessageSource) []dto.SourceDTO {
	if len(sources) == 0 {
		return nil
	}
	out := make([]dto.SourceDTO, len(sources))
	for i, src := range sources {
		out[i] = dto.SourceDTO{
			DocumentId:     src.DocumentId,
			DocumentName:   src.DocumentName,
			ChunkId:        src.ChunkId,
			ChunkIndex:     src.ChunkIndex,
			RelevanceScore: src.RelevanceScore,
		}
	}
	return out
}

func toMessageResponses(messages []*entity.ChatMessage) []*dto.ChatMessageResponse {
	out := make([]*dto.ChatMessageResponse, len(messages))
	for i, m := range messages {
		out[i] = &dto.ChatMessageResponse{
			Id:             m.Id,
			Role:           m.Role,
			Content:        m.Content,
			TokensUsed:     m.TokensUsed,
			ModelUsed:      m.ModelUsed,
			ResponseTimeMs: m.ResponseTimeMs,
			Sources:        toSourceDTOs(m.Sources),
			IsPartial:      m.IsPartial,
			CreatedAt:      m.CreatedAt,
		}
	}
	return out
}
