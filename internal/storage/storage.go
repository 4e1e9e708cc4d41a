package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when no object exists at a key
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for keys escaping the storage root
	ErrInvalidKey = errors.New("invalid key: path traversal detected")
)

// Reader provides read access to stored content
type Reader interface {
	// GetReader returns a reader for the content at the given key
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if content exists at the given key
	Exists(ctx context.Context, key string) (bool, error)
}

// Writer stores content at a slash-separated key, creating parents as needed
type Writer interface {
	// Put writes r to key, replacing any previous content, and returns bytes written
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
}

// Metadata contains storage object metadata
type Metadata struct {
	Size        int64
	ContentType string
	ETag        string
}

// ReaderWithMetadata provides read access with metadata
type ReaderWithMetadata interface {
	Reader

	// GetMetadata returns metadata for content at the given key
	GetMetadata(ctx context.Context, key string) (*Metadata, error)
}
