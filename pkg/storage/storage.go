// Package storage saves uploaded files and hands them to the extractor as
// local paths.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("stored file not found")

type Storage interface {
	// Save writes data under name and returns the path to record.
	Save(ctx context.Context, name string, data []byte) (string, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
	// LocalPath returns a filesystem path for path. The caller must run
	// cleanup once done with it.
	LocalPath(ctx context.Context, path string) (string, func(), error)
}
