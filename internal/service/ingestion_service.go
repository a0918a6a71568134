package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"veritasai-be/internal/apperr"
	"veritasai-be/internal/dto"
	"veritasai-be/internal/entity"
	"veritasai-be/internal/pkg/logger"
	"veritasai-be/internal/repository/contract"
	"veritasai-be/internal/repository/specification"
	"veritasai-be/internal/repository/unitofwork"
	"veritasai-be/pkg/chunking"
	"veritasai-be/pkg/embedding"
	"veritasai-be/pkg/events"
	"veritasai-be/pkg/extractor"
	"veritasai-be/pkg/storage"
	"veritasai-be/pkg/token"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	EventDocumentProgress = "document.progress"

	stageExtracting = "extracting"
	stageEmbedding  = "embedding"
	stageSaving     = "saving"
	stageDone       = "done"
)

var errNoEmbeddableChunks = errors.New("document produced no chunk long enough to embed")

// ProgressNotifier pushes an event to every connection of a user.
type ProgressNotifier interface {
	Send(userID uuid.UUID, eventType string, data interface{})
}

// EventPublisher is satisfied by the NATS publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type IIngestionService interface {
	// Process runs the whole pipeline for one document. Pipeline failures are
	// recorded on the document; only failures to load or record it are
	// returned.
	Process(ctx context.Context, documentId uuid.UUID) error
}

type IngestionDeps struct {
	UowFactory unitofwork.RepositoryFactory
	Storage    storage.Storage
	Extractor  extractor.Extractor
	Chunker    *chunking.Chunker
	Engine     *embedding.Engine
	Index      contract.ChunkIndex
	Notifier   ProgressNotifier
	Publisher  EventPublisher
	Model      string
	// Dimension, when set, is the vector size every embedding must have.
	Dimension int
	Logger    logger.ILogger
	Tracer    trace.Tracer
}

type ingestionService struct {
	uowFactory unitofwork.RepositoryFactory
	storage    storage.Storage
	extractor  extractor.Extractor
	chunker    *chunking.Chunker
	engine     *embedding.Engine
	index      contract.ChunkIndex
	notifier   ProgressNotifier
	publisher  EventPublisher
	model      string
	dimension  int
	logger     logger.ILogger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewIngestionService(d IngestionDeps) IIngestionService {
	if d.Logger == nil {
		d.Logger = logger.NewNopLogger()
	}
	if d.Tracer == nil {
		d.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if d.Chunker == nil {
		d.Chunker = chunking.New(chunking.DefaultChunkSize, chunking.DefaultOverlap)
	}
	return &ingestionService{
		uowFactory: d.UowFactory,
		storage:    d.Storage,
		extractor:  d.Extractor,
		chunker:    d.Chunker,
		engine:     d.Engine,
		index:      d.Index,
		notifier:   d.Notifier,
		publisher:  d.Publisher,
		model:      d.Model,
		dimension:  d.Dimension,
		logger:     d.Logger,
		tracer:     d.Tracer,
		now:        time.Now,
	}
}

func (s *ingestionService) Process(ctx context.Context, documentId uuid.UUID) (err error) {
	ctx, span := s.tracer.Start(ctx, "ingestion.process",
		trace.WithAttributes(attribute.String("document.id", documentId.String())))
	defer span.End()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	doc, err := uow.DocumentRepository().FindOne(ctx, specification.ByID{ID: documentId})
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentId, err)
	}
	if doc == nil {
		return fmt.Errorf("document %s: %w", documentId, apperr.ErrNotFound)
	}

	doc.MarkProcessing()
	if err := uow.DocumentRepository().Update(ctx, doc); err != nil {
		return fmt.Errorf("mark document %s processing: %w", documentId, err)
	}
	s.progress(doc, stageExtracting, 0, 0, "")

	s.logger.Info("INGESTION", "Processing document", map[string]interface{}{
		"document_id": doc.Id.String(),
		"name":        doc.Name,
	})

	defer func() {
		if r := recover(); r != nil {
			err = s.fail(ctx, doc, fmt.Errorf("panic during processing: %v", r))
		}
	}()

	start := s.now()
	if runErr := s.run(ctx, doc); runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		return s.fail(ctx, doc, runErr)
	}

	s.logger.Info("INGESTION", "Document processed", map[string]interface{}{
		"document_id": doc.Id.String(),
		"chunks":      doc.NumChunks,
		"duration_ms": s.now().Sub(start).Milliseconds(),
	})
	s.progress(doc, stageDone, doc.NumChunks, doc.NumChunks, "")
	s.publish(ctx, events.NewDocumentEvent(events.TypeDocumentCompleted, doc.Id, doc.UserId, map[string]interface{}{
		"num_chunks": doc.NumChunks,
	}))
	return nil
}

func (s *ingestionService) run(ctx context.Context, doc *entity.Document) error {
	if err := s.engine.CheckHealth(ctx); err != nil {
		return err
	}

	localPath, cleanup, err := s.storage.LocalPath(ctx, doc.Path)
	if err != nil {
		return fmt.Errorf("open stored file: %w", err)
	}
	defer cleanup()

	text, err := s.extractor.Extract(ctx, localPath)
	if err != nil {
		return err
	}

	contents := s.engine.Filter(chunking.Contents(s.chunker.Split(text)))
	if len(contents) == 0 {
		return errNoEmbeddableChunks
	}

	s.progress(doc, stageEmbedding, 0, len(contents), "")
	vectors, err := s.engine.Generate(ctx, contents, func(processed, total int) {
		s.progress(doc, stageEmbedding, processed, total, "")
	})
	if err != nil {
		return err
	}
	if s.dimension > 0 {
		for i, v := range vectors {
			if len(v) != s.dimension {
				return fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(v), s.dimension)
			}
		}
	}

	chunks := make([]*entity.DocumentChunk, len(contents))
	for i, content := range contents {
		tokens := token.Estimate(content)
		chunks[i] = &entity.DocumentChunk{
			Id:         uuid.New(),
			DocumentId: doc.Id,
			ChunkIndex: i,
			Content:    content,
			Embedding:  vectors[i],
			TokenCount: &tokens,
			Length:     utf8.RuneCountInString(content),
			CreatedAt:  s.now(),
		}
	}

	s.progress(doc, stageSaving, len(chunks), len(chunks), "")
	if err := s.save(ctx, doc, chunks); err != nil {
		return err
	}

	if err := s.index.DeleteDocument(ctx, doc.Id); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	if err := s.index.Index(ctx, chunks); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	return nil
}

// save replaces the document's chunks and marks it completed in one
// transaction.
func (s *ingestionService) save(ctx context.Context, doc *entity.Document, chunks []*entity.DocumentChunk) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.DocumentChunkRepository().DeleteByDocumentId(ctx, doc.Id); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}
	if err := uow.DocumentChunkRepository().CreateBulk(ctx, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}

	doc.MarkCompleted(len(chunks), s.model, s.now())
	if err := uow.DocumentRepository().Update(ctx, doc); err != nil {
		return fmt.Errorf("mark document completed: %w", err)
	}
	return uow.Commit()
}

// fail records cause on the document and drops any chunks stored for it. The
// writes ignore cancellation so a dropped job still leaves the document in a
// final state.
func (s *ingestionService) fail(ctx context.Context, doc *entity.Document, cause error) error {
	ctx = context.WithoutCancel(ctx)

	doc.MarkFailed(cause.Error(), s.now())
	s.logger.Error("INGESTION", "Document processing failed", map[string]interface{}{
		"document_id": doc.Id.String(),
		"error":       cause.Error(),
	})

	if err := s.recordFailure(ctx, doc); err != nil {
		return fmt.Errorf("record failure for document %s: %w", doc.Id, err)
	}
	if err := s.index.DeleteDocument(ctx, doc.Id); err != nil {
		s.logger.Warn("INGESTION", "Failed to clear index for failed document", map[string]interface{}{
			"document_id": doc.Id.String(),
			"error":       err.Error(),
		})
	}

	s.progress(doc, stageDone, 0, 0, *doc.ErrorMessage)
	s.publish(ctx, events.NewDocumentEvent(events.TypeDocumentFailed, doc.Id, doc.UserId, map[string]interface{}{
		"error": *doc.ErrorMessage,
	}))
	return nil
}

func (s *ingestionService) recordFailure(ctx context.Context, doc *entity.Document) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.DocumentChunkRepository().DeleteByDocumentId(ctx, doc.Id); err != nil {
		return err
	}
	if err := uow.DocumentRepository().Update(ctx, doc); err != nil {
		return err
	}
	return uow.Commit()
}

func (s *ingestionService) progress(doc *entity.Document, stage string, processed, total int, errMsg string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Send(doc.UserId, EventDocumentProgress, dto.ProgressEvent{
		DocumentId: doc.Id,
		Status:     string(doc.Status),
		Stage:      stage,
		Processed:  processed,
		Total:      total,
		Error:      errMsg,
	})
}

func (s *ingestionService) publish(ctx context.Context, evt events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("INGESTION", "Failed to publish lifecycle event", map[string]interface{}{
			"type":  evt.EventType(),
			"error": err.Error(),
		})
	}
}
