package filestore

import (
	"context"
	"io"
	"time"
)

// Optional engine capabilities, discovered with a type assertion:
//
//	if kl, ok := engine.(filestore.KeyLister); ok { ... }

// StreamReader reads a file without requiring Seek, which suits remote
// backends where Open would have to buffer the whole object.
type StreamReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// StreamWriter stores everything read from reader at path.
type StreamWriter interface {
	Put(ctx context.Context, path string, reader io.Reader) error
}

// RangeReader reads length bytes starting at offset (length -1 reads to EOF).
type RangeReader interface {
	GetRange(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error)
}

// KeyLister lists every file key starting with prefix in one call. Engines
// backed by flat object stores implement it so listing does not have to walk
// a synthetic directory tree.
type KeyLister interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Hasher computes a file checksum on the backend side.
type Hasher interface {
	Hash(ctx context.Context, path string, algorithm string) (string, error)
}

// Copier copies a file or directory, server side where possible.
type Copier interface {
	Copy(ctx context.Context, src, dst string) error
}

// SignedURLGenerator issues temporary access URLs.
type SignedURLGenerator interface {
	SignedURL(ctx context.Context, path string, expiry time.Duration) (string, error)
}
