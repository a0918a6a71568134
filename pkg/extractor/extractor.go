// Package extractor pulls plain text out of uploaded files.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNotFound          = errors.New("file not found")
	ErrExtraction        = errors.New("text extraction failed")
)

// MinTextLength is the smallest trimmed text considered a real extraction.
// Shorter output usually means a scanned, encrypted or corrupt file.
const MinTextLength = 10

// Extractor turns a file on local disk into text.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// FormatFunc extracts one format. It is only called for existing files.
type FormatFunc func(ctx context.Context, path string) (string, error)

// Registry dispatches on the lower-cased file extension.
type Registry struct {
	formats map[string]FormatFunc
}

// NewRegistry returns a registry with every built-in format.
func NewRegistry() *Registry {
	r := &Registry{formats: make(map[string]FormatFunc)}
	r.Register(".txt", extractPlainText)
	r.Register(".md", extractMarkdown)
	r.Register(".pdf", extractPDF)
	r.Register(".docx", extractDOCX)
	r.Register(".xlsx", extractXLSX)
	return r
}

func (r *Registry) Register(ext string, fn FormatFunc) {
	r.formats[normalizeExt(ext)] = fn
}

func (r *Registry) Supported(ext string) bool {
	_, ok := r.formats[normalizeExt(ext)]
	return ok
}

// AllowedExtensions lists the registered extensions without the dot, sorted.
func (r *Registry) AllowedExtensions() []string {
	exts := make([]string, 0, len(r.formats))
	for ext := range r.formats {
		exts = append(exts, strings.TrimPrefix(ext, "."))
	}
	sort.Strings(exts)
	return exts
}

func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	ext := normalizeExt(filepath.Ext(path))
	fn, ok := r.formats[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, strings.TrimPrefix(ext, "."))
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	text, err := fn(ctx, path)
	if err != nil {
		if errors.Is(err, ErrExtraction) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %v", ErrExtraction, filepath.Base(path), err)
	}

	text = strings.TrimSpace(text)
	if len(text) < MinTextLength {
		return "", fmt.Errorf("%w: extracted text too short (%d characters), file may be scanned, encrypted or corrupt",
			ErrExtraction, len(text))
	}
	return text, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

var _ Extractor = (*Registry)(nil)
