// Package apperr collects the error kinds callers branch on. Errors raised by
// the pkg/ libraries are re-exported so handlers only import one package.
package apperr

import (
	"errors"

	"veritasai-be/pkg/embedding"
	"veritasai-be/pkg/extractor"
	"veritasai-be/pkg/llm"
)

var (
	ErrUnsupportedFormat         = extractor.ErrUnsupportedFormat
	ErrExtraction                = extractor.ErrExtraction
	ErrEmbeddingGenerationFailed = embedding.ErrEmbeddingGenerationFailed
	ErrCapabilityNotSupported    = llm.ErrCapabilityNotSupported
	ErrProviderUnavailable       = llm.ErrProviderUnavailable
	ErrUnknownProvider           = llm.ErrUnknownProvider
)

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrNoUserMessage    = errors.New("no user message in conversation")
	ErrInvalidChatScope = errors.New("exactly one of document_id or session_id must be set")
	ErrDocumentNotReady = errors.New("document is not ready for chat")
	ErrFileTooLarge     = errors.New("file too large")
	ErrInvalidInput     = errors.New("invalid input")
)

// IsNotFound also matches the extractor's missing-file error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, extractor.ErrNotFound)
}
