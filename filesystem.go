package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Filesystem is a named, key-oriented view of a [StorageEngine]. It remembers
// the [File] handles it hands out (the register) until they are explicitly
// dropped, and is safe for concurrent use as far as the engine is.
type Filesystem struct {
	name   string
	engine StorageEngine

	mu       sync.Mutex
	register map[string]*File
}

// NewFilesystem wraps engine under name.
func NewFilesystem(name string, engine StorageEngine) *Filesystem {
	return &Filesystem{
		name:     name,
		engine:   engine,
		register: make(map[string]*File),
	}
}

// Name returns the logical name the filesystem was created with.
func (f *Filesystem) Name() string { return f.name }

// Engine returns the underlying engine.
func (f *Filesystem) Engine() StorageEngine { return f.engine }

// Has reports whether key names an existing file. Directories do not count.
func (f *Filesystem) Has(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("%w: empty key", ErrInvalid)
	}
	info, err := f.engine.Stat(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir, nil
}

// Get returns the file stored under key, or an error wrapping ErrNotFound.
// Repeated calls return the same handle until [Filesystem.RemoveFromRegister].
func (f *Filesystem) Get(ctx context.Context, key string) (*File, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalid)
	}
	info, err := f.engine.Stat(ctx, key)
	if errors.Is(err, ErrNotFound) || (err == nil && info.IsDir) {
		return nil, fmt.Errorf("%w: %q in %s", ErrNotFound, key, f.name)
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if file, ok := f.register[key]; ok {
		return file, nil
	}
	file := newLazyFile(key, info, func(ctx context.Context) ([]byte, error) {
		return f.read(ctx, key)
	})
	f.register[key] = file
	return file, nil
}

func (f *Filesystem) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := openReader(ctx, f.engine, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// CreateStream returns an unopened stream for key.
func (f *Filesystem) CreateStream(ctx context.Context, key string) (Stream, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalid)
	}
	return NewEngineStream(ctx, f.engine, key), nil
}

// Delete removes the file stored under key. A missing file is reported with
// an error wrapping ErrNotFound.
func (f *Filesystem) Delete(ctx context.Context, key string) error {
	ok, err := f.Has(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q in %s", ErrNotFound, key, f.name)
	}
	f.RemoveFromRegister(key)
	return f.engine.Remove(ctx, key)
}

// RemoveFromRegister forgets any handle cached for key.
func (f *Filesystem) RemoveFromRegister(key string) {
	f.mu.Lock()
	delete(f.register, key)
	f.mu.Unlock()
}

// ListKeys returns the sorted file keys starting with prefix, along with the
// directories that contain them. An empty prefix lists everything.
func (f *Filesystem) ListKeys(ctx context.Context, prefix string) (Keys, error) {
	var keys []string
	if kl, ok := f.engine.(KeyLister); ok {
		listed, err := kl.ListKeys(ctx, prefix)
		if err != nil {
			return Keys{}, err
		}
		keys = listed
	} else {
		walked, err := f.walkKeys(ctx, prefix)
		if err != nil {
			return Keys{}, err
		}
		keys = walked
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)
	return Keys{Keys: keys, Dirs: parentDirs(keys)}, nil
}

func (f *Filesystem) walkKeys(ctx context.Context, prefix string) ([]string, error) {
	root := ""
	if i := strings.LastIndex(prefix, "/"); i > 0 {
		root = prefix[:i]
	}

	var keys []string
	err := Walk(ctx, f.engine, root, func(p string, info *EntryInfo, err error) error {
		if err != nil {
			if p == root && errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		if info.IsDir {
			return nil
		}
		key := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	return keys, err
}

func parentDirs(keys []string) []string {
	seen := make(map[string]struct{})
	var dirs []string
	for _, key := range keys {
		for dir := path.Dir(key); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if _, ok := seen[dir]; ok {
				break
			}
			seen[dir] = struct{}{}
			dirs = append(dirs, dir)
		}
	}
	slices.Sort(dirs)
	return dirs
}
