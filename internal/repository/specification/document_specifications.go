package specification

import (
	"time"

	"veritasai-be/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByDocumentStatus struct {
	Status entity.DocumentStatus
}

func (s ByDocumentStatus) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", string(s.Status))
}

type ByFileHash struct {
	Hash string
}

func (s ByFileHash) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("file_hash = ?", s.Hash)
}

type ByCategory struct {
	Category string
}

func (s ByCategory) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("category = ?", s.Category)
}

// ByDocumentID filters child rows (chunks, messages) by their document.
type ByDocumentID struct {
	DocumentID uuid.UUID
}

func (s ByDocumentID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("document_id = ?", s.DocumentID)
}

// MissingTokenCount selects chunks written before token counts were stored.
type MissingTokenCount struct{}

func (s MissingTokenCount) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("token_count IS NULL")
}

// UpdatedBefore selects rows not touched since Time.
type UpdatedBefore struct {
	Time time.Time
}

func (s UpdatedBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("updated_at < ?", s.Time)
}

type ByPath struct {
	Path string
}

func (s ByPath) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("path = ?", s.Path)
}
