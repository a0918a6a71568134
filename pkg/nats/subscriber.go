package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"veritasai-be/internal/pkg/logger"
	"veritasai-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type EventHandler func(ctx context.Context, event events.Event) error

type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger logger.ILogger
	stops  []jetstream.ConsumeContext
}

func NewSubscriber(url string, log logger.ILogger) (*Subscriber, error) {
	nc, js, err := Connect(url, log)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js, logger: log}, nil
}

// Subscribe attaches a durable consumer for eventType. A handler error naks
// the message so JetStream redelivers it.
func (s *Subscriber) Subscribe(ctx context.Context, eventType, durableName string, handler EventHandler) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: Subject(eventType),
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var payload map[string]interface{}
		if err := json.Unmarshal(msg.Data(), &payload); err != nil {
			s.logger.Error("NATS", "Dropping malformed event", map[string]interface{}{"subject": msg.Subject(), "error": err.Error()})
			msg.Term()
			return
		}

		event := events.BaseEvent{
			EventID:    msg.Headers().Get(nats.MsgIdHdr),
			Type:       strings.TrimPrefix(msg.Subject(), subjectPrefix),
			Data:       payload,
			OccurredAt: time.Now(),
		}
		if meta, err := msg.Metadata(); err == nil {
			event.OccurredAt = meta.Timestamp
		}

		if err := handler(ctx, event); err != nil {
			s.logger.Error("NATS", "Handler failed", map[string]interface{}{"subject": msg.Subject(), "error": err.Error()})
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	s.stops = append(s.stops, cc)

	s.logger.Info("NATS", "Subscribed", map[string]interface{}{"subject": Subject(eventType), "durable": durableName})
	return nil
}

func (s *Subscriber) Close() {
	for _, cc := range s.stops {
		cc.Stop()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
