// Package storage defines the blob store abstraction that backs the result cache.
// Backends live in subpackages (local filesystem, in-memory, Google Cloud Storage).
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by GetObject when no object exists at the path.
var ErrNotFound = errors.New("object not found")

// BlobStore reads and writes opaque objects by slash-separated path.
type BlobStore interface {
	// PutObject stores the reader's content at path and returns a backend URI.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	// GetObject returns the content stored at path or ErrNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
}
