package model

import (
	"context"
	"io"
)

// Storage is an object store for archived vault blobs.
type Storage interface {
	Upload(ctx context.Context, key string, data []byte, metadata map[string]string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
