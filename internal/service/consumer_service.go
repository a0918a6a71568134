package service

import (
	"context"
	"encoding/json"
	"errors"

	"veritasai-be/internal/apperr"
	"veritasai-be/internal/pkg/logger"
	"veritasai-be/pkg/events"
	pktNats "veritasai-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService runs queued ingestion jobs from a watermill subscriber.
type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	ingestion  IIngestionService
	logger     logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	ingestion IIngestionService,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		ingestion:  ingestion,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload ProcessDocumentMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("CONSUMER", "Failed to unmarshal job", map[string]interface{}{"error": err.Error()})
		msg.Ack()
		return
	}

	err := cs.ingestion.Process(ctx, payload.DocumentId)
	switch {
	case err == nil:
		msg.Ack()
	case errors.Is(err, apperr.ErrNotFound):
		// deleted before the job ran
		cs.logger.Warn("CONSUMER", "Document no longer exists", map[string]interface{}{
			"document_id": payload.DocumentId.String(),
		})
		msg.Ack()
	default:
		cs.logger.Error("CONSUMER", "Failed to process document", map[string]interface{}{
			"document_id": payload.DocumentId.String(),
			"error":       err.Error(),
		})
		msg.Nack()
	}
}

// JobSubscriber is satisfied by the NATS subscriber.
type JobSubscriber interface {
	Subscribe(ctx context.Context, eventType, durableName string, handler pktNats.EventHandler) error
}

// ConsumeNatsJobs wires durable JetStream ingestion jobs to the pipeline.
// Unknown documents are dropped instead of redelivered.
func ConsumeNatsJobs(ctx context.Context, sub JobSubscriber, ingestion IIngestionService, log logger.ILogger) error {
	return sub.Subscribe(ctx, events.TypeProcessDocument, "document-processor", func(ctx context.Context, evt events.Event) error {
		id, ok := events.DocumentID(evt)
		if !ok {
			log.Error("CONSUMER", "Job without document id", map[string]interface{}{"payload": evt.Payload()})
			return nil
		}
		err := ingestion.Process(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return err
	})
}
