package filestore

import (
	"context"
	"os"
)

// StorageEngine is the contract every driver implements. Paths are
// slash-separated and relative to the engine root.
type StorageEngine interface {
	// Stat returns metadata about a file or directory.
	Stat(ctx context.Context, path string) (*EntryInfo, error)

	// Open opens a file for reading.
	Open(ctx context.Context, path string) (ReadSeekCloser, error)

	// Create creates or truncates a file for writing. Data is committed no
	// later than Close, and Close reports any commit failure.
	Create(ctx context.Context, path string) (WriteCloser, error)

	// OpenFile opens a file with explicit flags, e.g. os.O_APPEND.
	OpenFile(ctx context.Context, path string, flag int, perm os.FileMode) (WriteSeekCloser, error)

	// Remove deletes a file, or a directory with everything under it.
	Remove(ctx context.Context, path string) error

	// Rename moves a file or directory.
	Rename(ctx context.Context, oldPath, newPath string) error

	// MkdirAll creates a directory with its parents. Object stores may treat
	// it as a no-op.
	MkdirAll(ctx context.Context, path string) error

	// ReadDir lists the direct children of a directory.
	ReadDir(ctx context.Context, path string) ([]*EntryInfo, error)
}
