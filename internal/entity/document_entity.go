package entity

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

const (
	MaxErrorMessageLength = 10000
	truncatedSuffix       = "... (truncated)"
)

type Document struct {
	Id             uuid.UUID
	UserId         uuid.UUID
	Name           string
	Path           string
	Status         DocumentStatus
	ErrorMessage   *string
	NumChunks      int
	EmbeddingModel *string
	FileHash       string
	FileSize       int64
	Category       *string
	Tags           []string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      *time.Time
	DeletedAt      *time.Time
	IsDeleted      bool
}

// Extension returns the lower-cased extension without the dot.
func (d *Document) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(d.Name)), ".")
}

func (d *Document) IsReady() bool {
	return d.Status == DocumentStatusCompleted
}

func (d *Document) MarkProcessing() {
	d.Status = DocumentStatusProcessing
	d.ErrorMessage = nil
}

func (d *Document) MarkCompleted(numChunks int, model string, at time.Time) {
	d.Status = DocumentStatusCompleted
	d.NumChunks = numChunks
	d.EmbeddingModel = &model
	d.ErrorMessage = nil
	d.ProcessedAt = &at
}

func (d *Document) MarkFailed(msg string, at time.Time) {
	msg = TruncateError(msg)
	d.Status = DocumentStatusFailed
	d.ErrorMessage = &msg
	d.NumChunks = 0
	d.EmbeddingModel = nil
	d.ProcessedAt = &at
}

// StuckSince reports whether the document has sat in pending or processing
// without an update since before cutoff.
func (d *Document) StuckSince(cutoff time.Time) bool {
	if d.Status != DocumentStatusPending && d.Status != DocumentStatusProcessing {
		return false
	}
	touched := d.CreatedAt
	if d.UpdatedAt != nil {
		touched = *d.UpdatedAt
	}
	return touched.Before(cutoff)
}

// ResetForReprocess puts a document back at the start of the pipeline.
func (d *Document) ResetForReprocess() {
	d.Status = DocumentStatusPending
	d.ErrorMessage = nil
	d.NumChunks = 0
	d.EmbeddingModel = nil
	d.ProcessedAt = nil
}

// TruncateError caps msg at MaxErrorMessageLength characters.
func TruncateError(msg string) string {
	r := []rune(msg)
	if len(r) <= MaxErrorMessageLength {
		return msg
	}
	return string(r[:MaxErrorMessageLength]) + truncatedSuffix
}
