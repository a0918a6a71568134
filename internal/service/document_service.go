package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"veritasai-be/internal/apperr"
	"veritasai-be/internal/dto"
	"veritasai-be/internal/entity"
	"veritasai-be/internal/pkg/logger"
	"veritasai-be/internal/repository/contract"
	"veritasai-be/internal/repository/specification"
	"veritasai-be/internal/repository/unitofwork"
	"veritasai-be/pkg/storage"
	"veritasai-be/pkg/utils"

	"github.com/google/uuid"
)

const (
	defaultListLimit  = 20
	defaultStaleAfter = 30 * time.Minute
)

const interruptedMessage = "processing was interrupted before completion"

// FormatChecker is satisfied by the extractor registry.
type FormatChecker interface {
	Supported(ext string) bool
	AllowedExtensions() []string
}

type IDocumentService interface {
	Upload(ctx context.Context, userId uuid.UUID, req *dto.UploadDocumentRequest) (*dto.UploadDocumentResponse, error)
	List(ctx context.Context, userId uuid.UUID, req *dto.ListDocumentsRequest) (*dto.ListDocumentsResponse, error)
	Show(ctx context.Context, userId, id uuid.UUID) (*dto.DocumentResponse, error)
	Status(ctx context.Context, userId, id uuid.UUID) (*dto.DocumentStatusResponse, error)
	Delete(ctx context.Context, userId, id uuid.UUID) error
	Reprocess(ctx context.Context, userId, id uuid.UUID) (*dto.DocumentResponse, error)
	RecoverStale(ctx context.Context) (*dto.RecoveryResult, error)
}

type DocumentDeps struct {
	UowFactory    unitofwork.RepositoryFactory
	Storage       storage.Storage
	Formats       FormatChecker
	Dispatcher    IJobDispatcher
	Index         contract.ChunkIndex
	MaxUploadSize int64
	StaleAfter    time.Duration
	Logger        logger.ILogger
}

type documentService struct {
	uowFactory    unitofwork.RepositoryFactory
	storage       storage.Storage
	formats       FormatChecker
	dispatcher    IJobDispatcher
	index         contract.ChunkIndex
	maxUploadSize int64
	staleAfter    time.Duration
	logger        logger.ILogger
}

func NewDocumentService(d DocumentDeps) IDocumentService {
	if d.Logger == nil {
		d.Logger = logger.NewNopLogger()
	}
	if d.StaleAfter <= 0 {
		d.StaleAfter = defaultStaleAfter
	}
	return &documentService{
		uowFactory:    d.UowFactory,
		storage:       d.Storage,
		formats:       d.Formats,
		dispatcher:    d.Dispatcher,
		index:         d.Index,
		maxUploadSize: d.MaxUploadSize,
		staleAfter:    d.StaleAfter,
		logger:        d.Logger,
	}
}

func (s *documentService) Upload(ctx context.Context, userId uuid.UUID, req *dto.UploadDocumentRequest) (*dto.UploadDocumentResponse, error) {
	name := filepath.Base(strings.TrimSpace(req.FileName))
	ext := strings.ToLower(filepath.Ext(name))
	if !s.formats.Supported(ext) {
		return nil, fmt.Errorf("%w: %q (allowed: %s)", apperr.ErrUnsupportedFormat, ext,
			strings.Join(s.formats.AllowedExtensions(), ", "))
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", apperr.ErrInvalidInput)
	}
	if s.maxUploadSize > 0 && int64(len(req.Data)) > s.maxUploadSize {
		return nil, fmt.Errorf("%w: %s exceeds %s", apperr.ErrFileTooLarge,
			utils.FormatFileSize(int64(len(req.Data))), utils.FormatFileSize(s.maxUploadSize))
	}

	sum := sha256.Sum256(req.Data)
	hash := hex.EncodeToString(sum[:])

	uow := s.uowFactory.NewUnitOfWork(ctx)
	existing, err := uow.DocumentRepository().FindOne(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.ByFileHash{Hash: hash},
	)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &dto.UploadDocumentResponse{Document: toDocumentResponse(existing), Duplicate: true}, nil
	}

	path, err := s.storage.Save(ctx, fmt.Sprintf("documents/%s%s", hash, ext), req.Data)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	doc := &entity.Document{
		Id:        uuid.New(),
		UserId:    userId,
		Name:      name,
		Path:      path,
		Status:    entity.DocumentStatusPending,
		FileHash:  hash,
		FileSize:  int64(len(req.Data)),
		Category:  req.Category,
		Tags:      req.Tags,
		CreatedAt: time.Now(),
	}
	if err := uow.DocumentRepository().Create(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("DOCUMENT", "Document uploaded", map[string]interface{}{
		"document_id": doc.Id.String(),
		"user_id":     userId.String(),
		"size":        doc.FileSize,
	})

	doc = s.dispatch(ctx, uow, doc)
	return &dto.UploadDocumentResponse{Document: toDocumentResponse(doc)}, nil
}

// dispatch queues doc for ingestion and returns its latest state. A queue
// failure is recorded on the document.
func (s *documentService) dispatch(ctx context.Context, uow unitofwork.UnitOfWork, doc *entity.Document) *entity.Document {
	if err := s.dispatcher.Dispatch(ctx, doc); err != nil {
		s.logger.Error("DOCUMENT", "Failed to dispatch document", map[string]interface{}{
			"document_id": doc.Id.String(),
			"error":       err.Error(),
		})
		doc.MarkFailed(err.Error(), time.Now())
		if err := uow.DocumentRepository().Update(ctx, doc); err != nil {
			s.logger.Error("DOCUMENT", "Failed to record dispatch failure", map[string]interface{}{
				"document_id": doc.Id.String(),
				"error":       err.Error(),
			})
		}
		return doc
	}

	latest, err := uow.DocumentRepository().FindOne(ctx, specification.ByID{ID: doc.Id})
	if err != nil || latest == nil {
		return doc
	}
	return latest
}

func (s *documentService) List(ctx context.Context, userId uuid.UUID, req *dto.ListDocumentsRequest) (*dto.ListDocumentsResponse, error) {
	filters := []specification.Specification{specification.UserOwnedBy{UserID: userId}}
	if req.Status != "" {
		filters = append(filters, specification.ByDocumentStatus{Status: entity.DocumentStatus(req.Status)})
	}
	if req.Category != "" {
		filters = append(filters, specification.ByCategory{Category: req.Category})
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	total, err := uow.DocumentRepository().Count(ctx, filters...)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	docs, err := uow.DocumentRepository().FindAll(ctx, append(filters,
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit, Offset: req.Offset},
	)...)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.DocumentResponse, len(docs))
	for i, d := range docs {
		items[i] = toDocumentResponse(d)
	}
	return &dto.ListDocumentsResponse{Items: items, Total: total}, nil
}

func (s *documentService) Show(ctx context.Context, userId, id uuid.UUID) (*dto.DocumentResponse, error) {
	doc, err := s.find(ctx, s.uowFactory.NewUnitOfWork(ctx), userId, id)
	if err != nil {
		return nil, err
	}
	return toDocumentResponse(doc), nil
}

func (s *documentService) Status(ctx context.Context, userId, id uuid.UUID) (*dto.DocumentStatusResponse, error) {
	doc, err := s.find(ctx, s.uowFactory.NewUnitOfWork(ctx), userId, id)
	if err != nil {
		return nil, err
	}
	return &dto.DocumentStatusResponse{
		Id:           doc.Id,
		Status:       string(doc.Status),
		ErrorMessage: doc.ErrorMessage,
		NumChunks:    doc.NumChunks,
		ProcessedAt:  doc.ProcessedAt,
	}, nil
}

// Delete removes the document with its chunks and document-scoped messages.
// The stored file goes only when no other document points at it.
func (s *documentService) Delete(ctx context.Context, userId, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	doc, err := s.find(ctx, uow, userId, id)
	if err != nil {
		return err
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.DocumentChunkRepository().DeleteByDocumentId(ctx, doc.Id); err != nil {
		return err
	}
	if err := uow.ChatMessageRepository().DeleteByDocumentId(ctx, doc.Id); err != nil {
		return err
	}
	if err := uow.DocumentRepository().Delete(ctx, doc.Id); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	if err := s.index.DeleteDocument(ctx, doc.Id); err != nil {
		s.logger.Warn("DOCUMENT", "Failed to drop index entries", map[string]interface{}{
			"document_id": doc.Id.String(),
			"error":       err.Error(),
		})
	}

	shared, err := uow.DocumentRepository().Count(ctx, specification.ByPath{Path: doc.Path})
	if err != nil {
		s.logger.Warn("DOCUMENT", "Failed to check file references", map[string]interface{}{
			"path":  doc.Path,
			"error": err.Error(),
		})
		return nil
	}
	if shared == 0 {
		if err := s.storage.Delete(ctx, doc.Path); err != nil {
			s.logger.Warn("DOCUMENT", "Failed to delete stored file", map[string]interface{}{
				"path":  doc.Path,
				"error": err.Error(),
			})
		}
	}
	return nil
}

func (s *documentService) Reprocess(ctx context.Context, userId, id uuid.UUID) (*dto.DocumentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	doc, err := s.find(ctx, uow, userId, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == entity.DocumentStatusProcessing && !doc.StuckSince(time.Now().Add(-s.staleAfter)) {
		return nil, fmt.Errorf("%w: document is already processing", apperr.ErrInvalidInput)
	}

	doc.ResetForReprocess()
	if err := uow.DocumentRepository().Update(ctx, doc); err != nil {
		return nil, err
	}
	return toDocumentResponse(s.dispatch(ctx, uow, doc)), nil
}

// RecoverStale finds documents left behind by a crash or a lost job. Stuck
// processing documents are marked failed; stuck pending ones are dispatched
// again.
func (s *documentService) RecoverStale(ctx context.Context) (*dto.RecoveryResult, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	cutoff := time.Now().Add(-s.staleAfter)
	result := &dto.RecoveryResult{}

	processing, err := uow.DocumentRepository().FindAll(ctx,
		specification.ByDocumentStatus{Status: entity.DocumentStatusProcessing},
		specification.UpdatedBefore{Time: cutoff},
	)
	if err != nil {
		return nil, err
	}
	for _, doc := range processing {
		doc.MarkFailed(interruptedMessage, time.Now())
		if err := uow.DocumentRepository().Update(ctx, doc); err != nil {
			return result, err
		}
		result.Failed++
	}

	pending, err := uow.DocumentRepository().FindAll(ctx,
		specification.ByDocumentStatus{Status: entity.DocumentStatusPending},
		specification.UpdatedBefore{Time: cutoff},
	)
	if err != nil {
		return result, err
	}
	for _, doc := range pending {
		s.dispatch(ctx, uow, doc)
		result.Requeued++
	}

	if result.Failed > 0 || result.Requeued > 0 {
		s.logger.Warn("DOCUMENT", "Recovered stale documents", map[string]interface{}{
			"failed":   result.Failed,
			"requeued": result.Requeued,
		})
	}
	return result, nil
}

func (s *documentService) find(ctx context.Context, uow unitofwork.UnitOfWork, userId, id uuid.UUID) (*entity.Document, error) {
	doc, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.ErrNotFound
	}
	return doc, nil
}

func toDocumentResponse(d *entity.Document) *dto.DocumentResponse {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return &dto.DocumentResponse{
		Id:                d.Id,
		Name:              d.Name,
		Status:            string(d.Status),
		ErrorMessage:      d.ErrorMessage,
		NumChunks:         d.NumChunks,
		EmbeddingModel:    d.EmbeddingModel,
		FileSize:          d.FileSize,
		FileSizeFormatted: utils.FormatFileSize(d.FileSize),
		Category:          d.Category,
		Tags:              tags,
		ProcessedAt:       d.ProcessedAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}
