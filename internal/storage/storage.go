// Package storage provides temporary and persistent file storage for
// compilation requests. It defines the Storage interface and implementations
// for local disk and S3.
package storage

import (
	"context"
	"io"
	"os"
)

// Storage defines the interface for temporary and persistent file storage.
// Downloaded assets, effect intermediates and exports live in temporary files
// until the request finishes; the final export may be uploaded to S3.
type Storage interface {
	// TempDir returns the directory that holds temporary files.
	TempDir() string

	// CreateTemp creates a new, empty temporary file opened for writing.
	// The name is used as a filename prefix and ext (without the dot) as
	// its extension. The caller owns the returned file.
	CreateTemp(ctx context.Context, name, ext string) (*os.File, error)

	// LoadTemp opens a temporary file for reading.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
