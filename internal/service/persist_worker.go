package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"veritasai-be/internal/entity"
	"veritasai-be/internal/pkg/logger"
	"veritasai-be/internal/repository/specification"
	"veritasai-be/internal/repository/unitofwork"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

const PersistTopicName = "CHAT_PERSIST"

// PersistJob is one finished (or interrupted) chat turn waiting to be saved.
type PersistJob struct {
	UserId         uuid.UUID              `json:"user_id"`
	SessionId      *uuid.UUID             `json:"session_id,omitempty"`
	DocumentId     *uuid.UUID             `json:"document_id,omitempty"`
	Question       string                 `json:"question"`
	Answer         string                 `json:"answer"`
	Sources        []entity.MessageSource `json:"sources"`
	Model          string                 `json:"model"`
	TokensUsed     int                    `json:"tokens_used"`
	ResponseTimeMs int                    `json:"response_time_ms"`
	IsPartial      bool                   `json:"is_partial"`
	At             time.Time              `json:"at"`
}

// IPersistQueue accepts chat turns for asynchronous storage.
type IPersistQueue interface {
	Enqueue(ctx context.Context, job PersistJob) error
}

type IPersistWorker interface {
	IPersistQueue
	Start(ctx context.Context) error
	Handle(ctx context.Context, job PersistJob) error
}

type persistWorker struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topicName  string
	uowFactory unitofwork.RepositoryFactory
	logger     logger.ILogger
	now        func() time.Time
}

func NewPersistWorker(
	publisher message.Publisher,
	subscriber message.Subscriber,
	uowFactory unitofwork.RepositoryFactory,
	log logger.ILogger,
) IPersistWorker {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &persistWorker{
		publisher:  publisher,
		subscriber: subscriber,
		topicName:  PersistTopicName,
		uowFactory: uowFactory,
		logger:     log,
		now:        time.Now,
	}
}

func (w *persistWorker) Enqueue(ctx context.Context, job PersistJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return w.publisher.Publish(w.topicName, msg)
}

// Start consumes the queue until ctx is done or the subscriber is closed.
func (w *persistWorker) Start(ctx context.Context) error {
	messages, err := w.subscriber.Subscribe(ctx, w.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			w.processMessage(ctx, msg)
		}
	}()
	return nil
}

// processMessage always acks; a failed write is logged and dropped.
func (w *persistWorker) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var job PersistJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		w.logger.Error("CHAT_PERSIST", "Failed to unmarshal job", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := w.Handle(context.WithoutCancel(ctx), job); err != nil {
		w.logger.Error("CHAT_PERSIST", "Failed to save chat turn", map[string]interface{}{
			"user_id": job.UserId.String(),
			"error":   err.Error(),
		})
	}
}

// Handle writes the question and answer and updates session stats in one
// transaction.
func (w *persistWorker) Handle(ctx context.Context, job PersistJob) error {
	at := job.At
	if at.IsZero() {
		at = w.now()
	}

	question, err := entity.NewChatMessage(job.UserId, job.SessionId, job.DocumentId, entity.ChatRoleUser, job.Question)
	if err != nil {
		return err
	}
	question.CreatedAt = at

	answer, err := entity.NewChatMessage(job.UserId, job.SessionId, job.DocumentId, entity.ChatRoleAssistant, job.Answer)
	if err != nil {
		return err
	}
	tokens, elapsed, model := job.TokensUsed, job.ResponseTimeMs, job.Model
	answer.TokensUsed = &tokens
	answer.ResponseTimeMs = &elapsed
	if model != "" {
		answer.ModelUsed = &model
	}
	answer.Sources = job.Sources
	answer.IsPartial = job.IsPartial
	// keeps the pair ordered when history is sorted by created_at
	answer.CreatedAt = at.Add(time.Millisecond)

	uow := w.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().CreateBulk(ctx, []*entity.ChatMessage{question, answer}); err != nil {
		return fmt.Errorf("store messages: %w", err)
	}

	if job.SessionId != nil {
		session, err := uow.ChatSessionRepository().FindOne(ctx,
			specification.ByID{ID: *job.SessionId},
			specification.UserOwnedBy{UserID: job.UserId},
			specification.ForUpdate{},
		)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if session != nil {
			session.Touch(2, at)
			session.AutoTitle(job.Question)
			if err := uow.ChatSessionRepository().Update(ctx, session); err != nil {
				return fmt.Errorf("update session: %w", err)
			}
		}
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	w.logger.Debug("CHAT_PERSIST", "Chat turn saved", map[string]interface{}{
		"user_id":    job.UserId.String(),
		"is_partial": job.IsPartial,
	})
	return nil
}
