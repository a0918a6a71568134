package service

import (
	"context"
	"encoding/json"
	"fmt"

	"veritasai-be/internal/entity"
	"veritasai-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// IJobDispatcher hands a pending document to whatever runs ingestion.
type IJobDispatcher interface {
	Dispatch(ctx context.Context, doc *entity.Document) error
}

// ProcessDocumentMessage is the payload of a queued ingestion job.
type ProcessDocumentMessage struct {
	DocumentId uuid.UUID `json:"document_id"`
	UserId     uuid.UUID `json:"user_id"`
}

// syncDispatcher runs ingestion inline. Used by the CLI and tests.
type syncDispatcher struct {
	ingestion IIngestionService
}

func NewSyncDispatcher(ingestion IIngestionService) IJobDispatcher {
	return &syncDispatcher{ingestion: ingestion}
}

func (d *syncDispatcher) Dispatch(ctx context.Context, doc *entity.Document) error {
	return d.ingestion.Process(context.WithoutCancel(ctx), doc.Id)
}

type watermillDispatcher struct {
	publisher message.Publisher
	topicName string
}

func NewWatermillDispatcher(publisher message.Publisher, topicName string) IJobDispatcher {
	return &watermillDispatcher{publisher: publisher, topicName: topicName}
}

func (d *watermillDispatcher) Dispatch(ctx context.Context, doc *entity.Document) error {
	payload, err := json.Marshal(ProcessDocumentMessage{DocumentId: doc.Id, UserId: doc.UserId})
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := d.publisher.Publish(d.topicName, msg); err != nil {
		return fmt.Errorf("queue document %s: %w", doc.Id, err)
	}
	return nil
}

type natsDispatcher struct {
	publisher EventPublisher
}

func NewNatsDispatcher(publisher EventPublisher) IJobDispatcher {
	return &natsDispatcher{publisher: publisher}
}

func (d *natsDispatcher) Dispatch(ctx context.Context, doc *entity.Document) error {
	evt := events.NewDocumentEvent(events.TypeProcessDocument, doc.Id, doc.UserId, nil)
	if err := d.publisher.Publish(ctx, evt); err != nil {
		return fmt.Errorf("publish job for document %s: %w", doc.Id, err)
	}
	return nil
}
