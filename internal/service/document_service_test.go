package service

import (
	"context"
	"testing"
	"time"

	"veritasai-be/internal/apperr"
	"veritasai-be/internal/dto"
	"veritasai-be/internal/entity"
	"veritasai-be/pkg/extractor"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	docs []*entity.Document
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, doc *entity.Document) error {
	d.docs = append(d.docs, doc)
	return d.err
}

type documentFixture struct {
	*ingestionFixture
	dispatcher *recordingDispatcher
	svc        IDocumentService
}

func newDocumentFixture(t *testing.T) *documentFixture {
	f := &documentFixture{ingestionFixture: newIngestionFixture(t), dispatcher: &recordingDispatcher{}}
	f.svc = NewDocumentService(DocumentDeps{
		UowFactory:    f.store,
		Storage:       f.storage,
		Formats:       extractor.NewRegistry(),
		Dispatcher:    f.dispatcher,
		Index:         f.index,
		MaxUploadSize: 1024,
	})
	return f
}

func TestDocumentService_Upload_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     dto.UploadDocumentRequest
		wantErr error
	}{
		{
			name:    "unsupported extension",
			req:     dto.UploadDocumentRequest{FileName: "script.exe", Data: []byte("MZ binary")},
			wantErr: apperr.ErrUnsupportedFormat,
		},
		{
			name:    "empty file",
			req:     dto.UploadDocumentRequest{FileName: "notes.txt"},
			wantErr: apperr.ErrInvalidInput,
		},
		{
			name:    "too large",
			req:     dto.UploadDocumentRequest{FileName: "notes.txt", Data: make([]byte, 2048)},
			wantErr: apperr.ErrFileTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDocumentFixture(t)
			res, err := f.svc.Upload(context.Background(), f.userId, &tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.Empty(t, f.dispatcher.docs)
		})
	}
}

func TestDocumentService_Upload_Deduplicates(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()
	category := "hr"

	first, err := f.svc.Upload(ctx, f.userId, &dto.UploadDocumentRequest{
		FileName: "Handbook.TXT",
		Data:     []byte(handbook),
		Category: &category,
		Tags:     []string{"policy"},
	})
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, "pending", first.Document.Status)
	assert.Equal(t, "Handbook.TXT", first.Document.Name)
	assert.Equal(t, []string{"policy"}, first.Document.Tags)
	assert.Equal(t, int64(len(handbook)), first.Document.FileSize)
	require.Len(t, f.dispatcher.docs, 1)

	stored := f.store.document(first.Document.Id)
	assert.Regexp(t, `^documents/[0-9a-f]{64}\.txt$`, stored.Path)
	ok, err := f.storage.Exists(ctx, stored.Path)
	require.NoError(t, err)
	assert.True(t, ok)

	again, err := f.svc.Upload(ctx, f.userId, &dto.UploadDocumentRequest{FileName: "copy.txt", Data: []byte(handbook)})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Document.Id, again.Document.Id)
	assert.Len(t, f.dispatcher.docs, 1)

	other, err := f.svc.Upload(ctx, uuid.New(), &dto.UploadDocumentRequest{FileName: "copy.txt", Data: []byte(handbook)})
	require.NoError(t, err)
	assert.False(t, other.Duplicate)
}

func TestDocumentService_Upload_ProcessesInline(t *testing.T) {
	f := newDocumentFixture(t)
	f.svc = NewDocumentService(DocumentDeps{
		UowFactory: f.store,
		Storage:    f.storage,
		Formats:    extractor.NewRegistry(),
		Dispatcher: NewSyncDispatcher(f.ingestionFixture.svc),
		Index:      f.index,
	})

	res, err := f.svc.Upload(context.Background(), f.userId, &dto.UploadDocumentRequest{
		FileName: "handbook.md",
		Data:     []byte("# Handbook\n\n" + handbook),
	})
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Document.Status)
	assert.Positive(t, res.Document.NumChunks)

	status, err := f.svc.Status(context.Background(), f.userId, res.Document.Id)
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, res.Document.NumChunks, status.NumChunks)
}

func TestDocumentService_Upload_DispatchFailure(t *testing.T) {
	f := newDocumentFixture(t)
	f.dispatcher.err = errBoom

	res, err := f.svc.Upload(context.Background(), f.userId, &dto.UploadDocumentRequest{
		FileName: "handbook.txt",
		Data:     []byte(handbook),
	})
	require.NoError(t, err)
	assert.Equal(t, "failed", res.Document.Status)
	require.NotNil(t, res.Document.ErrorMessage)
	assert.Contains(t, *res.Document.ErrorMessage, "boom")
}

func TestDocumentService_List(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()
	uow := f.store.NewUnitOfWork(ctx)
	for _, status := range []entity.DocumentStatus{
		entity.DocumentStatusCompleted,
		entity.DocumentStatusCompleted,
		entity.DocumentStatusFailed,
	} {
		require.NoError(t, uow.DocumentRepository().Create(ctx, newDocument(f.userId, "doc.txt", status)))
	}
	require.NoError(t, uow.DocumentRepository().Create(ctx, newDocument(uuid.New(), "foreign.txt", entity.DocumentStatusCompleted)))

	tests := []struct {
		name      string
		req       dto.ListDocumentsRequest
		wantTotal int64
		wantItems int
	}{
		{name: "all", req: dto.ListDocumentsRequest{}, wantTotal: 3, wantItems: 3},
		{name: "by status", req: dto.ListDocumentsRequest{Status: "completed"}, wantTotal: 2, wantItems: 2},
		{name: "paged", req: dto.ListDocumentsRequest{Limit: 2, Offset: 2}, wantTotal: 3, wantItems: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.List(ctx, f.userId, &tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, res.Total)
			assert.Len(t, res.Items, tt.wantItems)
		})
	}
}

func TestDocumentService_Delete(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	doc := f.add(t, "handbook.txt", handbook)
	require.NoError(t, f.ingestionFixture.svc.Process(ctx, doc.Id))
	require.NoError(t, NewPersistWorker(nil, nil, f.store, nil).Handle(ctx, PersistJob{
		UserId: f.userId, DocumentId: &doc.Id, Question: "q", Answer: "a",
	}))

	// a second owner of the same stored file
	twin := newDocument(uuid.New(), "handbook.txt", entity.DocumentStatusCompleted)
	twin.Path = doc.Path
	require.NoError(t, f.store.NewUnitOfWork(ctx).DocumentRepository().Create(ctx, twin))

	assert.ErrorIs(t, f.svc.Delete(ctx, uuid.New(), doc.Id), apperr.ErrNotFound)

	require.NoError(t, f.svc.Delete(ctx, f.userId, doc.Id))
	assert.Nil(t, f.store.document(doc.Id))
	assert.Empty(t, f.store.chunks[doc.Id])
	assert.Empty(t, f.store.messagesCopy())
	assert.Zero(t, f.index.Count())
	exists, err := f.storage.Exists(ctx, doc.Path)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, f.svc.Delete(ctx, twin.UserId, twin.Id))
	exists, err = f.storage.Exists(ctx, doc.Path)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDocumentService_Reprocess(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	failed := newDocument(f.userId, "a.txt", entity.DocumentStatusFailed)
	msg := "extraction failed"
	failed.ErrorMessage = &msg
	busy := newDocument(f.userId, "b.txt", entity.DocumentStatusProcessing)
	uow := f.store.NewUnitOfWork(ctx)
	require.NoError(t, uow.DocumentRepository().Create(ctx, failed))
	require.NoError(t, uow.DocumentRepository().Create(ctx, busy))

	res, err := f.svc.Reprocess(ctx, f.userId, failed.Id)
	require.NoError(t, err)
	assert.Equal(t, "pending", res.Status)
	assert.Nil(t, res.ErrorMessage)
	require.Len(t, f.dispatcher.docs, 1)
	assert.Equal(t, failed.Id, f.dispatcher.docs[0].Id)

	_, err = f.svc.Reprocess(ctx, f.userId, busy.Id)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestDocumentService_ReprocessStuckProcessing(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	stuck := newDocument(f.userId, "a.txt", entity.DocumentStatusProcessing)
	touched := time.Now().Add(-2 * time.Hour)
	stuck.UpdatedAt = &touched
	require.NoError(t, f.store.NewUnitOfWork(ctx).DocumentRepository().Create(ctx, stuck))

	res, err := f.svc.Reprocess(ctx, f.userId, stuck.Id)
	require.NoError(t, err)
	assert.Equal(t, "pending", res.Status)
	require.Len(t, f.dispatcher.docs, 1)
}

func TestDocumentService_RecoverStale(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()
	old := time.Now().Add(-2 * time.Hour)

	at := func(d *entity.Document, ts time.Time) *entity.Document {
		d.UpdatedAt = &ts
		return d
	}
	stuckProcessing := at(newDocument(f.userId, "a.txt", entity.DocumentStatusProcessing), old)
	stuckPending := at(newDocument(f.userId, "b.txt", entity.DocumentStatusPending), old)
	freshProcessing := at(newDocument(f.userId, "c.txt", entity.DocumentStatusProcessing), time.Now())
	freshPending := newDocument(f.userId, "d.txt", entity.DocumentStatusPending)
	oldCompleted := at(newDocument(f.userId, "e.txt", entity.DocumentStatusCompleted), old)

	uow := f.store.NewUnitOfWork(ctx)
	for _, d := range []*entity.Document{stuckProcessing, stuckPending, freshProcessing, freshPending, oldCompleted} {
		require.NoError(t, uow.DocumentRepository().Create(ctx, d))
	}

	res, err := f.svc.RecoverStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Requeued)

	failed := f.store.document(stuckProcessing.Id)
	assert.Equal(t, entity.DocumentStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, interruptedMessage, *failed.ErrorMessage)

	require.Len(t, f.dispatcher.docs, 1)
	assert.Equal(t, stuckPending.Id, f.dispatcher.docs[0].Id)

	tests := []struct {
		name string
		doc  *entity.Document
		want entity.DocumentStatus
	}{
		{"fresh processing untouched", freshProcessing, entity.DocumentStatusProcessing},
		{"fresh pending untouched", freshPending, entity.DocumentStatusPending},
		{"completed untouched", oldCompleted, entity.DocumentStatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.store.document(tt.doc.Id).Status)
		})
	}
}
