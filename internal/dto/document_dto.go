package dto

import (
	"time"

	"github.com/google/uuid"
)

type UploadDocumentRequest struct {
	FileName string
	Data     []byte
	Category *string  `validate:"omitempty,max=100"`
	Tags     []string `validate:"max=20,dive,max=50"`
}

type DocumentResponse struct {
	Id                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Status            string     `json:"status"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	NumChunks         int        `json:"num_chunks"`
	EmbeddingModel    *string    `json:"embedding_model,omitempty"`
	FileSize          int64      `json:"file_size"`
	FileSizeFormatted string     `json:"file_size_formatted"`
	Category          *string    `json:"category,omitempty"`
	Tags              []string   `json:"tags"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

type UploadDocumentResponse struct {
	Document  *DocumentResponse `json:"document"`
	Duplicate bool              `json:"duplicate"`
}

type DocumentStatusResponse struct {
	Id           uuid.UUID  `json:"id"`
	Status       string     `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	NumChunks    int        `json:"num_chunks"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

type ListDocumentsRequest struct {
	Status   string `query:"status" validate:"omitempty,oneof=pending processing completed failed"`
	Category string `query:"category"`
	Limit    int    `query:"limit" validate:"min=0,max=100"`
	Offset   int    `query:"offset" validate:"min=0"`
}

type ListDocumentsResponse struct {
	Items []*DocumentResponse `json:"items"`
	Total int64               `json:"total"`
}

// ProgressEvent is pushed over the websocket while a document is processed.
type ProgressEvent struct {
	DocumentId uuid.UUID `json:"document_id"`
	Status     string    `json:"status"`
	Stage      string    `json:"stage"`
	Processed  int       `json:"processed"`
	Total      int       `json:"total"`
	Error      string    `json:"error,omitempty"`
}

func (e ProgressEvent) ScopeDocumentID() uuid.UUID { return e.DocumentId }

type RecoveryResult struct {
	Failed   int `json:"failed"`
	Requeued int `json:"requeued"`
}
