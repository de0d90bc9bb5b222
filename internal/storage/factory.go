package storage

import (
	"context"
	"fmt"

	"github.com/appdrop/appdrop/internal/storage/local"
	s3backend "github.com/appdrop/appdrop/internal/storage/s3"
)

// Options selects and configures the storage backend.
type Options struct {
	Type  string // "local" or "s3"
	Local local.Config
	S3    s3backend.Config
}

// NewBackend creates a Backend from Options.
func NewBackend(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Type {
	case "local":
		return local.New(opts.Local)
	case "s3":
		return s3backend.New(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", opts.Type)
	}
}
