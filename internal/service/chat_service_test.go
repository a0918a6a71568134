package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"veritasai-be/internal/apperr"
	"veritasai-be/internal/dto"
	"veritasai-be/internal/entity"
	"veritasai-be/internal/pkg/logger"
	"veritasai-be/pkg/embedding"
	"veritasai-be/pkg/llm"
	"veritasai-be/pkg/rag"
	"veritasai-be/pkg/token"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatFixture struct {
	store    *memStore
	provider *stubProvider
	queue    *syncQueue
	svc      IChatService
	userId   uuid.UUID
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	f := &chatFixture{
		store:    newMemStore(),
		provider: &stubProvider{name: "stub", fragments: []string{"Twenty", " five", " days."}},
		userId:   uuid.New(),
	}
	f.queue = &syncQueue{worker: NewPersistWorker(nil, nil, f.store, logger.NewNopLogger())}

	engine := embedding.NewEngine(f.provider, embedding.Config{MaxRetries: 1, RetryDelay: time.Millisecond})
	f.svc = NewChatService(ChatDeps{
		UowFactory: f.store,
		Registry:   &stubRegistry{provider: f.provider, known: []string{"other", "stub"}},
		Embedder:   rag.NewCachedEmbedder(engine, nil, "embed"),
		Retriever:  rag.NewRetriever(&memChunkRepo{s: f.store}, 15),
		Persister:  f.queue,
		Defaults: ChatDefaults{
			Provider:         "stub",
			Temperature:      0.7,
			MaxContextTokens: 4000,
		},
	})
	return f
}

// seed stores a document with one chunk per paragraph.
func (f *chatFixture) seed(t *testing.T, userId uuid.UUID, name string, status entity.DocumentStatus, text string) *entity.Document {
	t.Helper()
	doc := newDocument(userId, name, status)
	ctx := context.Background()
	uow := f.store.NewUnitOfWork(ctx)
	require.NoError(t, uow.DocumentRepository().Create(ctx, doc))

	var chunks []*entity.DocumentChunk
	for i, p := range strings.Split(text, "\n\n") {
		n := token.Estimate(p)
		chunks = append(chunks, &entity.DocumentChunk{
			Id:         uuid.New(),
			DocumentId: doc.Id,
			ChunkIndex: i,
			Content:    p,
			Embedding:  wordVector(p),
			TokenCount: &n,
		})
	}
	require.NoError(t, uow.DocumentChunkRepository().CreateBulk(ctx, chunks))
	return doc
}

func (f *chatFixture) session(t *testing.T, s *entity.ChatSession) *entity.ChatSession {
	t.Helper()
	s.Id = uuid.New()
	s.UserId = f.userId
	if s.Title == "" {
		s.Title = entity.DefaultSessionTitle
	}
	s.CreatedAt = time.Now()
	require.NoError(t, f.store.NewUnitOfWork(context.Background()).ChatSessionRepository().Create(context.Background(), s))
	return s
}

func drain(t *testing.T, ch <-chan dto.StreamEvent) []dto.StreamEvent {
	t.Helper()
	var out []dto.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, evt)
		case <-timeout:
			t.Fatal("stream did not finish")
			return out
		}
	}
}

func contentOf(events []dto.StreamEvent) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString(e.Content)
	}
	return b.String()
}

func userTurn(q string) []dto.ChatTurnMessage {
	return []dto.ChatTurnMessage{{Role: "user", Content: q}}
}

func TestChatService_Chat_RejectsBeforeBackend(t *testing.T) {
	docId, sessionId := uuid.New(), uuid.New()
	tests := []struct {
		name    string
		req     dto.ChatTurnRequest
		wantErr error
	}{
		{
			name: "no user message",
			req: dto.ChatTurnRequest{
				Messages:   []dto.ChatTurnMessage{{Role: "assistant", Content: "hello"}},
				DocumentId: &docId,
			},
			wantErr: apperr.ErrNoUserMessage,
		},
		{
			name:    "empty conversation",
			req:     dto.ChatTurnRequest{DocumentId: &docId},
			wantErr: apperr.ErrNoUserMessage,
		},
		{
			name:    "both scopes",
			req:     dto.ChatTurnRequest{Messages: userTurn("hi"), DocumentId: &docId, SessionId: &sessionId},
			wantErr: apperr.ErrInvalidChatScope,
		},
		{
			name:    "no scope",
			req:     dto.ChatTurnRequest{Messages: userTurn("hi")},
			wantErr: apperr.ErrInvalidChatScope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t)
			ch, err := f.svc.Chat(context.Background(), f.userId, &tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, ch)
			assert.Nil(t, f.provider.history())
			assert.Empty(t, f.queue.all())
		})
	}
}

func TestChatService_Chat_DocumentTurn(t *testing.T) {
	f := newChatFixture(t)
	doc := f.seed(t, f.userId, "handbook.txt", entity.DocumentStatusCompleted, handbook)

	ch, err := f.svc.Chat(context.Background(), f.userId, &dto.ChatTurnRequest{
		Messages: []dto.ChatTurnMessage{
			{Role: "user", Content: "Hello"},
			{Role: "assistant", Content: "Hi, ask me about the handbook."},
			{Role: "user", Content: "How many vacation days do I get?"},
		},
		DocumentId: &doc.Id,
	})
	require.NoError(t, err)
	events := drain(t, ch)

	require.Len(t, events, 4)
	assert.Equal(t, "Twenty five days.", contentOf(events))
	done := events[len(events)-1]
	assert.True(t, done.Done)
	assert.Equal(t, "stub-default", done.Model)
	require.NotEmpty(t, done.Sources)
	assert.Equal(t, "handbook.txt", done.Sources[0].DocumentName)
	assert.Equal(t, 0, done.Sources[0].ChunkIndex)

	history := f.provider.history()
	require.Len(t, history, 4)
	assert.Equal(t, llm.RoleSystem, history[0].Role)
	assert.Contains(t, history[0].Content, "this document ('handbook.txt')")
	assert.Contains(t, history[0].Content, "twenty five vacation days")
	assert.Equal(t, "How many vacation days do I get?", history[3].Content)

	stored := f.store.messagesCopy()
	require.Len(t, stored, 2)
	assert.Equal(t, entity.ChatRoleUser, stored[0].Role)
	assert.Equal(t, "How many vacation days do I get?", stored[0].Content)
	assert.Equal(t, entity.ChatRoleAssistant, stored[1].Role)
	assert.Equal(t, "Twenty five days.", stored[1].Content)
	assert.False(t, stored[1].IsPartial)
	assert.Equal(t, doc.Id, *stored[1].DocumentId)
	assert.Nil(t, stored[1].SessionId)
	require.NotNil(t, stored[1].ModelUsed)
	assert.Equal(t, "stub-default", *stored[1].ModelUsed)
	assert.NotEmpty(t, stored[1].Sources)

	res, err := f.svc.DocumentHistory(context.Background(), f.userId, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, "handbook.txt", res.DocumentName)
	assert.Len(t, res.Messages, 2)
}

func TestChatService_Chat_FailsBeforeStreaming(t *testing.T) {
	tests := []struct {
		name    string
		status  entity.DocumentStatus
		owner   func(f *chatFixture) uuid.UUID
		wantErr string
	}{
		{
			name:    "document still processing",
			status:  entity.DocumentStatusProcessing,
			owner:   func(f *chatFixture) uuid.UUID { return f.userId },
			wantErr: apperr.ErrDocumentNotReady.Error(),
		},
		{
			name:    "document of another user",
			status:  entity.DocumentStatusCompleted,
			owner:   func(*chatFixture) uuid.UUID { return uuid.New() },
			wantErr: "not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t)
			doc := f.seed(t, tt.owner(f), "handbook.txt", tt.status, handbook)

			ch, err := f.svc.Chat(context.Background(), f.userId, &dto.ChatTurnRequest{
				Messages:   userTurn("How many vacation days?"),
				DocumentId: &doc.Id,
			})
			require.NoError(t, err)
			events := drain(t, ch)

			require.Len(t, events, 1)
			assert.Contains(t, events[0].Error, tt.wantErr)
			assert.Nil(t, f.provider.history())
			assert.Empty(t, f.store.messagesCopy())
		})
	}
}

func TestChatService_Chat_MidStreamFailure(t *testing.T) {
	t.Run("keeps partial answer", func(t *testing.T) {
		f := newChatFixture(t)
		f.provider.fragments = []string{"Twenty", " five"}
		f.provider.streamErr = errBoom
		doc := f.seed(t, f.userId, "handbook.txt", entity.DocumentStatusCompleted, handbook)

		ch, err := f.svc.Chat(context.Background(), f.userId, &dto.ChatTurnRequest{
			Messages:   userTurn("How many vacation days?"),
			DocumentId: &doc.Id,
		})
		require.NoError(t, err)
		events := drain(t, ch)

		require.Len(t, events, 3)
		assert.Equal(t, "Twenty five", contentOf(events))
		assert.Equal(t, "boom", events[2].Error)

		stored := f.store.messagesCopy()
		require.Len(t, stored, 2)
		assert.True(t, stored[1].IsPartial)
		assert.Equal(t, "Twenty five", stored[1].Content)
	})

	t.Run("nothing streamed", func(t *testing.T) {
		f := newChatFixture(t)
		f.provider.fragments = nil
		f.provider.streamErr = errBoom
		doc := f.seed(t, f.userId, "handbook.txt", entity.DocumentStatusCompleted, handbook)

		ch, err := f.svc.Chat(context.Background(), f.userId, &dto.ChatTurnRequest{
			Messages:   userTurn("How many vacation days?"),
			DocumentId: &doc.Id,
		})
		require.NoError(t, err)
		events := drain(t, ch)

		require.Len(t, events, 1)
		assert.Equal(t, "boom", events[0].Error)
		assert.Empty(t, f.store.messagesCopy())
	})
}

func TestChatService_Chat_ClientDisconnect(t *testing.T) {
	f := newChatFixture(t)
	doc := f.seed(t, f.userId, "handbook.txt", entity.DocumentStatusCompleted, handbook)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := f.svc.Chat(ctx, f.userId, &dto.ChatTurnRequest{
		Messages:   userTurn("How many vacation days?"),
		DocumentId: &doc.Id,
	})
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "Twenty", first.Content)
	cancel()
	rest := drain(t, ch)

	for _, e := range rest {
		assert.False(t, e.Done)
		assert.Empty(t, e.Error)
	}
	jobs := f.queue.all()
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].IsPartial)
	assert.True(t, strings.HasPrefix(jobs[0].Answer, "Twenty"))
}

func TestChatService_Chat_SessionTurn(t *testing.T) {
	f := newChatFixture(t)
	handbookDoc := f.seed(t, f.userId, "handbook.txt", entity.DocumentStatusCompleted, handbook)
	f.seed(t, f.userId, "draft.txt", entity.DocumentStatusPending, "Office salary vacation draft")
	f.seed(t, uuid.New(), "foreign.txt", entity.DocumentStatusCompleted, "Vacation vacation vacation elsewhere")
	session := f.session(t, &entity.ChatSession{Provider: "other", Temperature: 0.2, MaxTokens: 256})

	question := "Tell me about the vacation policy for new employees please"
	ch, err := f.svc.Chat(context.Background(), f.userId, &dto.ChatTurnRequest{
		Messages:  userTurn(question),
		SessionId: &session.Id,
	})
	require.NoError(t, err)
	events := drain(t, ch)

	done := events[len(events)-1]
	require.True(t, done.Done)
	assert.Equal(t, "other-default", done.Model)
	for _, src := range done.Sources {
		assert.Equal(t, handbookDoc.Id, src.DocumentId)
	}

	history := f.provider.history()
	assert.Contains(t, history[0].Content, "the available documents")
	assert.NotContains(t, history[0].Content, "elsewhere")
	assert.Equal(t, 0.2, f.provider.lastOptions.Temperature)
	assert.Equal(t, 256, f.provider.lastOptions.MaxTokens)

	saved := f.store.sessions[session.Id]
	assert.Equal(t, 2, saved.MessageCount)
	assert.NotNil(t, saved.LastActivityAt)
	assert.Equal(t, "Tell me about the vacation policy for new employee...", saved.Title)

	stored := f.store.messagesCopy()
	require.Len(t, stored, 2)
	assert.Equal(t, session.Id, *stored[0].SessionId)
	assert.Nil(t, stored[0].DocumentId)
}

func TestChatService_Chat_EmptyScopeSkipsRetrieval(t *testing.T) {
	f := newChatFixture(t)
	f.provider.embedErr = errBoom
	session := f.session(t, &entity.ChatSession{Provider: "stub", Temperature: 0.7})

	ch, err := f.svc.Chat(context.Background(), f.userId, &dto.ChatTurnRequest{
		Messages:  userTurn("What is the capital of France?"),
		SessionId: &session.Id,
	})
	require.NoError(t, err)
	events := drain(t, ch)

	done := events[len(events)-1]
	require.True(t, done.Done)
	assert.Empty(t, done.Sources)
	assert.Equal(t, rag.FallbackPrompt, f.provider.history()[0].Content)
}

func TestChatService_ClearDocumentHistory(t *testing.T) {
	f := newChatFixture(t)
	doc := f.seed(t, f.userId, "handbook.txt", entity.DocumentStatusCompleted, handbook)

	ch, err := f.svc.Chat(context.Background(), f.userId, &dto.ChatTurnRequest{
		Messages:   userTurn("How many vacation days?"),
		DocumentId: &doc.Id,
	})
	require.NoError(t, err)
	drain(t, ch)
	require.Len(t, f.store.messagesCopy(), 2)

	require.NoError(t, f.svc.ClearDocumentHistory(context.Background(), f.userId, doc.Id))
	assert.Empty(t, f.store.messagesCopy())

	err = f.svc.ClearDocumentHistory(context.Background(), uuid.New(), doc.Id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
