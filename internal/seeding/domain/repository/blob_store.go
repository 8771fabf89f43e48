package repository

import (
	"context"
	"time"
)

// BlobObject is one listed object
type BlobObject struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// BlobWriteOptions carries object metadata for uploads
type BlobWriteOptions struct {
	ContentType  string
	CacheControl string
	Metadata     map[string]string
	PublicRead   bool
}

// BlobStore is the blob-store port
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, opts BlobWriteOptions) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]BlobObject, error)
	// URL returns the public URL of key without checking existence
	URL(key string) string
	Ping(ctx context.Context) error
	Close() error
}
