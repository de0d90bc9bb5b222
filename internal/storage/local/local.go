// Package local provides a local filesystem storage backend.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/appdrop/appdrop/internal/metrics"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath string `json:"root_path"`
}

// Backend implements storage.Backend using the local filesystem.
type Backend struct {
	rootPath string
}

// New creates a new local filesystem backend rooted at cfg.RootPath.
func New(cfg Config) (*Backend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.RootPath, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	return &Backend{rootPath: cfg.RootPath}, nil
}

func (b *Backend) fullPath(path string) string {
	return filepath.Join(b.rootPath, filepath.FromSlash(path))
}

// Exists reports whether a file exists on the local filesystem.
func (b *Backend) Exists(_ context.Context, path string) (bool, error) {
	start := time.Now()
	_, err := os.Stat(b.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			metrics.RecordStorageOperation("exists", time.Since(start), true)
			return false, nil
		}
		metrics.RecordStorageOperation("exists", time.Since(start), false)
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	metrics.RecordStorageOperation("exists", time.Since(start), true)
	return true, nil
}

// ReadFile reads a file from the local filesystem.
func (b *Backend) ReadFile(_ context.Context, path string) ([]byte, error) {
	start := time.Now()
	data, err := os.ReadFile(b.fullPath(path))
	if err != nil {
		metrics.RecordStorageOperation("read", time.Since(start), false)
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	metrics.RecordStorageOperation("read", time.Since(start), true)
	return data, nil
}

// WriteFile writes content to the local filesystem atomically.
func (b *Backend) WriteFile(_ context.Context, path string, content []byte) error {
	start := time.Now()
	full := b.fullPath(path)
	dir := filepath.Dir(full)

	if err := os.MkdirAll(dir, 0755); err != nil {
		metrics.RecordStorageOperation("write", time.Since(start), false)
		return fmt.Errorf("create dirs for %s: %w", path, err)
	}

	// Write to temp file then rename for atomicity
	tmp, err := os.CreateTemp(dir, ".appdrop-*.tmp")
	if err != nil {
		metrics.RecordStorageOperation("write", time.Since(start), false)
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		metrics.RecordStorageOperation("write", time.Since(start), false)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		metrics.RecordStorageOperation("write", time.Since(start), false)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}

	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		metrics.RecordStorageOperation("write", time.Since(start), false)
		return fmt.Errorf("rename temp to %s: %w", path, err)
	}

	metrics.RecordStorageOperation("write", time.Since(start), true)
	return nil
}

// CreateDirectory ensures a directory exists. MkdirAll succeeds when the
// directory is already present, so a concurrent creator is not an error.
func (b *Backend) CreateDirectory(_ context.Context, path string) error {
	start := time.Now()
	if err := os.MkdirAll(b.fullPath(path), 0755); err != nil {
		metrics.RecordStorageOperation("mkdir", time.Since(start), false)
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	metrics.RecordStorageOperation("mkdir", time.Since(start), true)
	return nil
}

// Type returns "local".
func (b *Backend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *Backend) Close() error { return nil }
