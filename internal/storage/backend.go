// Package storage defines the Backend interface used to publish the manifest
// and to read archive documents, with local filesystem and S3 implementations.
package storage

import (
	"context"
	"io"
	"io/fs"
)

// ErrNotFound matches (via errors.Is) the error every backend returns from
// GetObject when the key does not exist.
var ErrNotFound = fs.ErrNotExist

// Backend is the interface for object storage backends.
type Backend interface {
	// GetObject streams the object at key and reports its size. Keys may
	// carry the leading slash of a manifest path.
	GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// PutObject replaces the object at key. Readers never observe a
	// partially written object.
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error

	// ObjectExists checks if an object exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// Type returns the backend type identifier ("s3", "local").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// Locator is implemented by backends whose objects live on the local
// filesystem, so callers can watch them for changes.
type Locator interface {
	FullPath(key string) string
}
