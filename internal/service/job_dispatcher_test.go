package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"veritasai-be/internal/apperr"
	"veritasai-be/internal/entity"
	"veritasai-be/internal/pkg/logger"
	"veritasai-be/pkg/events"
	pktNats "veritasai-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingIngestion struct {
	mu   sync.Mutex
	ids  []uuid.UUID
	err  error
	ctxs []context.Context
}

func (r *recordingIngestion) Process(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	r.ctxs = append(r.ctxs, ctx)
	return r.err
}

func (r *recordingIngestion) processed() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.ids...)
}

func TestSyncDispatcher_IgnoresRequestCancellation(t *testing.T) {
	ingestion := &recordingIngestion{}
	doc := newDocument(uuid.New(), "a.txt", entity.DocumentStatusPending)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, NewSyncDispatcher(ingestion).Dispatch(ctx, doc))

	assert.Equal(t, []uuid.UUID{doc.Id}, ingestion.processed())
	assert.NoError(t, ingestion.ctxs[0].Err())
}

func TestWatermillDispatcher_DeliversToConsumer(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	ingestion := &recordingIngestion{}
	consumer := NewConsumerService(pubSub, "PROCESS_DOCUMENT", ingestion, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, consumer.Consume(ctx))

	dispatcher := NewWatermillDispatcher(pubSub, "PROCESS_DOCUMENT")
	doc := newDocument(uuid.New(), "a.txt", entity.DocumentStatusPending)
	require.NoError(t, dispatcher.Dispatch(ctx, doc))

	assert.Eventually(t, func() bool {
		ids := ingestion.processed()
		return len(ids) == 1 && ids[0] == doc.Id
	}, 2*time.Second, 10*time.Millisecond)
}

type fakeJobSubscriber struct {
	eventType string
	durable   string
	handler   pktNats.EventHandler
}

func (f *fakeJobSubscriber) Subscribe(_ context.Context, eventType, durableName string, handler pktNats.EventHandler) error {
	f.eventType, f.durable, f.handler = eventType, durableName, handler
	return nil
}

func TestConsumeNatsJobs(t *testing.T) {
	tests := []struct {
		name       string
		event      events.Event
		processErr error
		wantErr    bool
		wantCalls  int
	}{
		{
			name:      "runs the job",
			event:     events.NewDocumentEvent(events.TypeProcessDocument, uuid.New(), uuid.New(), nil),
			wantCalls: 1,
		},
		{
			name:       "deleted document is dropped",
			event:      events.NewDocumentEvent(events.TypeProcessDocument, uuid.New(), uuid.New(), nil),
			processErr: apperr.ErrNotFound,
			wantCalls:  1,
		},
		{
			name:       "infrastructure error is redelivered",
			event:      events.NewDocumentEvent(events.TypeProcessDocument, uuid.New(), uuid.New(), nil),
			processErr: errBoom,
			wantErr:    true,
			wantCalls:  1,
		},
		{
			name:  "missing id is dropped",
			event: events.BaseEvent{Type: events.TypeProcessDocument, Data: map[string]interface{}{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeJobSubscriber{}
			ingestion := &recordingIngestion{err: tt.processErr}
			require.NoError(t, ConsumeNatsJobs(context.Background(), sub, ingestion, logger.NewNopLogger()))
			assert.Equal(t, events.TypeProcessDocument, sub.eventType)
			assert.Equal(t, "document-processor", sub.durable)

			err := sub.handler(context.Background(), tt.event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, ingestion.processed(), tt.wantCalls)
		})
	}
}

func TestNatsDispatcher_PublishesJob(t *testing.T) {
	pub := &recordingPublisher{}
	doc := newDocument(uuid.New(), "a.txt", entity.DocumentStatusPending)

	require.NoError(t, NewNatsDispatcher(pub).Dispatch(context.Background(), doc))
	assert.Equal(t, []string{events.TypeProcessDocument}, pub.types)

	pub.err = errBoom
	assert.ErrorIs(t, NewNatsDispatcher(pub).Dispatch(context.Background(), doc), errBoom)
}
