package filestore

import (
	"context"
	"sync"
	"time"
)

// File is a handle to a stored object. Content is loaded on first use and
// memoized, so a File obtained before an overwrite keeps the old bytes.
type File struct {
	key     string
	size    int64
	modTime time.Time
	load    func(ctx context.Context) ([]byte, error)

	mu      sync.Mutex
	content []byte
	loaded  bool
}

// NewFile returns a File that already holds content.
func NewFile(key string, content []byte) *File {
	return &File{
		key:     key,
		size:    int64(len(content)),
		modTime: time.Now(),
		content: content,
		loaded:  true,
	}
}

func newLazyFile(key string, info *EntryInfo, load func(ctx context.Context) ([]byte, error)) *File {
	f := &File{key: key, load: load}
	if info != nil {
		f.size = info.Size
		f.modTime = info.ModTime
	}
	return f
}

// Key returns the storage key.
func (f *File) Key() string { return f.key }

// Size returns the size reported when the handle was created.
func (f *File) Size() int64 { return f.size }

// ModTime returns the modification time reported when the handle was created.
func (f *File) ModTime() time.Time { return f.modTime }

// Content returns the full content, reading it from the backend the first time.
func (f *File) Content(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loaded {
		return f.content, nil
	}
	data, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	f.content = data
	f.size = int64(len(data))
	f.loaded = true
	return data, nil
}
