// Package nats carries job and lifecycle events over NATS JetStream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"veritasai-be/internal/pkg/logger"
	"veritasai-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	StreamName    = "EVENTS"
	subjectPrefix = "events."
)

// Connect dials NATS and makes sure the EVENTS stream exists.
func Connect(url string, log logger.ILogger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{subjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		// publish retries inside this window are dropped by message id
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		log.Warn("NATS", "Failed to ensure stream", map[string]interface{}{"stream": StreamName, "error": err.Error()})
	}

	return nc, js, nil
}

type Publisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewPublisher(url string, log logger.ILogger) (*Publisher, error) {
	nc, js, err := Connect(url, log)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, js: js}, nil
}

func Subject(eventType string) string {
	return subjectPrefix + eventType
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	var opts []jetstream.PublishOpt
	if id := event.ID(); id != "" {
		opts = append(opts, jetstream.WithMsgID(id))
	}

	subject := Subject(event.EventType())
	if _, err := p.js.Publish(ctx, subject, data, opts...); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
