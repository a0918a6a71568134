package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"veritasai-be/internal/entity"
	"veritasai-be/internal/repository/contract"
	"veritasai-be/internal/repository/specification"
	"veritasai-be/internal/repository/unitofwork"
	"veritasai-be/pkg/events"
	"veritasai-be/pkg/llm"
	"veritasai-be/pkg/rag"

	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for the database. Repositories read the
// specifications they are given with a type switch.
type memStore struct {
	mu        sync.Mutex
	documents map[uuid.UUID]*entity.Document
	chunks    map[uuid.UUID][]*entity.DocumentChunk
	sessions  map[uuid.UUID]*entity.ChatSession
	messages  []*entity.ChatMessage

	failDocumentUpdate error
}

func newMemStore() *memStore {
	return &memStore{
		documents: map[uuid.UUID]*entity.Document{},
		chunks:    map[uuid.UUID][]*entity.DocumentChunk{},
		sessions:  map[uuid.UUID]*entity.ChatSession{},
	}
}

func (s *memStore) NewUnitOfWork(context.Context) unitofwork.UnitOfWork {
	return &memUow{s: s}
}

func (s *memStore) document(id uuid.UUID) *entity.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return nil
	}
	c := *d
	return &c
}

func (s *memStore) messagesCopy() []*entity.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

type memUow struct{ s *memStore }

func (u *memUow) Begin(context.Context) error { return nil }
func (u *memUow) Commit() error               { return nil }
func (u *memUow) Rollback() error             { return nil }

func (u *memUow) DocumentRepository() contract.DocumentRepository {
	return &memDocumentRepo{s: u.s}
}
func (u *memUow) DocumentChunkRepository() contract.DocumentChunkRepository {
	return &memChunkRepo{s: u.s}
}
func (u *memUow) ChatSessionRepository() contract.ChatSessionRepository {
	return &memSessionRepo{s: u.s}
}
func (u *memUow) ChatMessageRepository() contract.ChatMessageRepository {
	return &memMessageRepo{s: u.s}
}

// filter holds the specifications the fakes understand.
type filter struct {
	id         *uuid.UUID
	ids        []uuid.UUID
	userId     *uuid.UUID
	status     *entity.DocumentStatus
	hash       *string
	category   *string
	path       *string
	documentId *uuid.UUID
	sessionId  *uuid.UUID
	noTokens   bool
	before     *time.Time
	limit      int
	offset     int
}

func parse(specs []specification.Specification) filter {
	var f filter
	for _, spec := range specs {
		switch v := spec.(type) {
		case specification.ByID:
			f.id = &v.ID
		case specification.ByIDs:
			f.ids = v.IDs
		case specification.UserOwnedBy:
			f.userId = &v.UserID
		case specification.ByDocumentStatus:
			f.status = &v.Status
		case specification.ByFileHash:
			f.hash = &v.Hash
		case specification.ByCategory:
			f.category = &v.Category
		case specification.ByPath:
			f.path = &v.Path
		case specification.ByDocumentID:
			f.documentId = &v.DocumentID
		case specification.BySessionID:
			f.sessionId = &v.SessionID
		case specification.UpdatedBefore:
			f.before = &v.Time
		case specification.MissingTokenCount:
			f.noTokens = true
		case specification.Pagination:
			f.limit, f.offset = v.Limit, v.Offset
		}
	}
	return f
}

func (f filter) idOk(id uuid.UUID) bool {
	if f.id != nil && *f.id != id {
		return false
	}
	if f.ids != nil {
		for _, candidate := range f.ids {
			if candidate == id {
				return true
			}
		}
		return false
	}
	return true
}

func (f filter) page(n int) (int, int) {
	start := min(f.offset, n)
	end := n
	if f.limit > 0 {
		end = min(start+f.limit, n)
	}
	return start, end
}

func (f filter) document(d *entity.Document) bool {
	return f.idOk(d.Id) &&
		(f.userId == nil || *f.userId == d.UserId) &&
		(f.status == nil || *f.status == d.Status) &&
		(f.hash == nil || *f.hash == d.FileHash) &&
		(f.category == nil || (d.Category != nil && *f.category == *d.Category)) &&
		(f.path == nil || *f.path == d.Path) &&
		(f.before == nil || lastTouched(d).Before(*f.before))
}

func lastTouched(d *entity.Document) time.Time {
	if d.UpdatedAt != nil {
		return *d.UpdatedAt
	}
	return d.CreatedAt
}

type memDocumentRepo struct{ s *memStore }

func (r *memDocumentRepo) Create(_ context.Context, d *entity.Document) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *d
	r.s.documents[d.Id] = &c
	return nil
}

func (r *memDocumentRepo) Update(_ context.Context, d *entity.Document) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failDocumentUpdate != nil {
		return r.s.failDocumentUpdate
	}
	c := *d
	r.s.documents[d.Id] = &c
	return nil
}

func (r *memDocumentRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.documents, id)
	return nil
}

func (r *memDocumentRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Document, error) {
	all, err := r.FindAll(ctx, specs...)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (r *memDocumentRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.Document, error) {
	f := parse(specs)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Document
	for _, d := range r.s.documents {
		if f.document(d) {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	start, end := f.page(len(out))
	return out[start:end], nil
}

func (r *memDocumentRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, err := r.FindAll(ctx, specs...)
	return int64(len(all)), err
}

func (r *memDocumentRepo) FindNamesByIds(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[uuid.UUID]string{}
	for _, id := range ids {
		if d, ok := r.s.documents[id]; ok {
			out[id] = d.Name
		}
	}
	return out, nil
}

type memChunkRepo struct{ s *memStore }

func (r *memChunkRepo) CreateBulk(_ context.Context, chunks []*entity.DocumentChunk) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range chunks {
		r.s.chunks[c.DocumentId] = append(r.s.chunks[c.DocumentId], c)
	}
	return nil
}

func (r *memChunkRepo) DeleteByDocumentId(_ context.Context, documentId uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.chunks, documentId)
	return nil
}

func (r *memChunkRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.DocumentChunk, error) {
	f := parse(specs)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.DocumentChunk
	for docId, chunks := range r.s.chunks {
		if f.documentId != nil && *f.documentId != docId {
			continue
		}
		for _, c := range chunks {
			if f.noTokens && c.TokenCount != nil {
				continue
			}
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	start, end := f.page(len(out))
	return out[start:end], nil
}

func (r *memChunkRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, err := r.FindAll(ctx, specs...)
	return int64(len(all)), err
}

func (r *memChunkRepo) UpdateTokenCount(_ context.Context, id uuid.UUID, tokenCount int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, chunks := range r.s.chunks {
		for _, c := range chunks {
			if c.Id == id {
				n := tokenCount
				c.TokenCount = &n
			}
		}
	}
	return nil
}

func (r *memChunkRepo) SearchSimilar(_ context.Context, vector []float32, documentIds []uuid.UUID, limit int) ([]rag.ScoredChunk, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []rag.ScoredChunk
	for _, id := range documentIds {
		for _, c := range r.s.chunks[id] {
			out = append(out, rag.ScoredChunk{
				ID:         c.Id,
				DocumentID: c.DocumentId,
				ChunkIndex: c.ChunkIndex,
				Content:    c.Content,
				TokenCount: c.TokenCount,
				Similarity: cosine(vector, c.Embedding),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range min(len(a), len(b)) {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type memSessionRepo struct{ s *memStore }

func (r *memSessionRepo) Create(_ context.Context, session *entity.ChatSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *session
	r.s.sessions[session.Id] = &c
	return nil
}

func (r *memSessionRepo) Update(ctx context.Context, session *entity.ChatSession) error {
	return r.Create(ctx, session)
}

func (r *memSessionRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, id)
	return nil
}

func (r *memSessionRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatSession, error) {
	all, err := r.FindAll(ctx, specs...)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (r *memSessionRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.ChatSession, error) {
	f := parse(specs)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.ChatSession
	for _, session := range r.s.sessions {
		if f.idOk(session.Id) && (f.userId == nil || *f.userId == session.UserId) {
			c := *session
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type memMessageRepo struct{ s *memStore }

func (r *memMessageRepo) Create(ctx context.Context, m *entity.ChatMessage) error {
	return r.CreateBulk(ctx, []*entity.ChatMessage{m})
}

func (r *memMessageRepo) CreateBulk(_ context.Context, messages []*entity.ChatMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range messages {
		if err := entity.ValidateScope(m.SessionId, m.DocumentId); err != nil {
			return err
		}
	}
	r.s.messages = append(r.s.messages, messages...)
	return nil
}

func (r *memMessageRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	f := parse(specs)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.ChatMessage
	for _, m := range r.s.messages {
		if f.sessionId != nil && (m.SessionId == nil || *m.SessionId != *f.sessionId) {
			continue
		}
		if f.documentId != nil && (m.DocumentId == nil || *m.DocumentId != *f.documentId) {
			continue
		}
		if f.userId != nil && *f.userId != m.UserId {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memMessageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, err := r.FindAll(ctx, specs...)
	return int64(len(all)), err
}

func (r *memMessageRepo) DeleteBySessionId(_ context.Context, sessionId uuid.UUID) error {
	return r.deleteWhere(func(m *entity.ChatMessage) bool {
		return m.SessionId != nil && *m.SessionId == sessionId
	})
}

func (r *memMessageRepo) DeleteByDocumentId(_ context.Context, documentId uuid.UUID) error {
	return r.deleteWhere(func(m *entity.ChatMessage) bool {
		return m.DocumentId != nil && *m.DocumentId == documentId
	})
}

func (r *memMessageRepo) deleteWhere(match func(*entity.ChatMessage) bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.messages[:0]
	for _, m := range r.s.messages {
		if !match(m) {
			kept = append(kept, m)
		}
	}
	r.s.messages = kept
	return nil
}

// stubProvider embeds text by word features and streams canned fragments.
type stubProvider struct {
	name      string
	health    error
	embedErr  error
	fragments []string
	streamErr error
	openErr   error
	models    []llm.ModelInfo

	mu          sync.Mutex
	lastHistory []llm.Message
	lastOptions *llm.Options
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Embed(_ context.Context, texts []string, _ ...llm.Option) ([][]float32, error) {
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = wordVector(t)
	}
	return out, nil
}

// wordVector counts a few marker words so related texts land close together.
func wordVector(text string) []float32 {
	lower := strings.ToLower(text)
	return []float32{
		float32(strings.Count(lower, "vacation")) + 0.01,
		float32(strings.Count(lower, "salary")) + 0.01,
		float32(strings.Count(lower, "office")) + 0.01,
	}
}

func (p *stubProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (*llm.ChatResponse, error) {
	return llm.NewChatResponse("stub", "stub-model", strings.Join(p.fragments, "")), nil
}

func (p *stubProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.StreamFrame, error) {
	p.mu.Lock()
	p.lastHistory = history
	p.lastOptions = llm.NewOptions(opts...)
	p.mu.Unlock()

	if p.openErr != nil {
		return nil, p.openErr
	}
	ch := make(chan llm.StreamFrame)
	go func() {
		defer close(ch)
		for _, f := range p.fragments {
			if !llm.Send(ctx, ch, llm.DeltaFrame(f)) {
				return
			}
		}
		if p.streamErr != nil {
			llm.Send(ctx, ch, llm.ErrorFrame(p.streamErr))
		}
	}()
	return ch, nil
}

func (p *stubProvider) ListModels(context.Context) ([]llm.ModelInfo, error) {
	return p.models, nil
}

func (p *stubProvider) Health(context.Context) error { return p.health }

func (p *stubProvider) history() []llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastHistory
}

// stubRegistry resolves every name to the one stub provider.
type stubRegistry struct {
	provider *stubProvider
	known    []string
}

func (r *stubRegistry) Names() []string { return r.known }

func (r *stubRegistry) Resolve(name string) (llm.ProviderConfig, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range r.known {
		if k == name {
			return llm.ProviderConfig{Name: name, ChatModel: name + "-default", EmbeddingModel: "embed"}, nil
		}
	}
	return llm.ProviderConfig{}, llm.ErrUnknownProvider
}

func (r *stubRegistry) Provider(_ context.Context, name string) (llm.Provider, error) {
	if _, err := r.Resolve(name); err != nil {
		return nil, err
	}
	return r.provider, nil
}

// syncQueue persists jobs inline through a real worker's Handle.
type syncQueue struct {
	worker IPersistWorker
	mu     sync.Mutex
	jobs   []PersistJob
}

func (q *syncQueue) Enqueue(ctx context.Context, job PersistJob) error {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	if q.worker == nil {
		return nil
	}
	return q.worker.Handle(ctx, job)
}

func (q *syncQueue) all() []PersistJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]PersistJob(nil), q.jobs...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []interface{}
}

func (n *recordingNotifier) Send(_ uuid.UUID, _ string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, data)
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, evt.EventType())
	return p.err
}

var errBoom = errors.New("boom")

func newDocument(userId uuid.UUID, name string, status entity.DocumentStatus) *entity.Document {
	return &entity.Document{
		Id:        uuid.New(),
		UserId:    userId,
		Name:      name,
		Path:      "documents/" + name,
		Status:    status,
		FileHash:  uuid.NewString(),
		CreatedAt: time.Now(),
	}
}
