// Package storage defines the Backend interface for the persistent
// key-value file store behind the downloads catalog.
package storage

import "context"

// Backend is the narrow file-like interface the catalog persists through.
// Implementations handle raw document I/O (local filesystem, S3).
type Backend interface {
	// Exists reports whether a document exists at the given logical path.
	Exists(ctx context.Context, path string) (bool, error)

	// ReadFile returns the full contents of the document at path.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile replaces the document at path with content.
	WriteFile(ctx context.Context, path string, content []byte) error

	// CreateDirectory ensures the logical directory exists. An already
	// existing directory is success, even when another writer created it
	// concurrently.
	CreateDirectory(ctx context.Context, path string) error

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
