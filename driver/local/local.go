// Package local stores files on a local directory through afero. Importing it
// registers the "local" driver.
package local

import (
	"context"
	"crypto/md5" //nolint:gosec // md5 is offered for compatibility checks
	"crypto/sha1" //nolint:gosec // sha1 is offered for compatibility checks
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/nuln/filestore"
)

const dirPerm = 0o750

func init() {
	filestore.Register("local", func(cfg *filestore.Config) (filestore.StorageEngine, error) {
		root := cfg.BasePath
		if root == "" {
			root = cfg.String("root", "./data")
		}
		return New(root)
	})
}

// Engine implements filestore.StorageEngine on an afero.Fs.
type Engine struct {
	fs   afero.Fs
	root string
}

// New returns an Engine rooted at root on the OS filesystem, creating the
// directory when needed.
func New(root string) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("filestore/local: resolve root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("filestore/local: create root %q: %w", abs, err)
	}
	return &Engine{
		fs:   afero.NewBasePathFs(afero.NewOsFs(), abs),
		root: abs,
	}, nil
}

// NewWithFs returns an Engine over fs, typically afero.NewMemMapFs in tests.
func NewWithFs(fs afero.Fs) *Engine {
	return &Engine{fs: fs, root: "."}
}

// Root returns the absolute root directory, or "." for custom filesystems.
func (e *Engine) Root() string { return e.root }

func entryOf(path string, info os.FileInfo) *filestore.EntryInfo {
	return &filestore.EntryInfo{
		Name:    info.Name(),
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Mode:    info.Mode(),
		IsDir:   info.IsDir(),
	}
}

func (e *Engine) ensureParent(path string) error {
	return e.fs.MkdirAll(filepath.Dir(path), dirPerm)
}

func (e *Engine) Stat(ctx context.Context, path string) (*filestore.EntryInfo, error) {
	info, err := e.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	return entryOf(path, info), nil
}

func (e *Engine) Open(ctx context.Context, path string) (filestore.ReadSeekCloser, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s", filestore.ErrIsDir, path)
	}
	return f, nil
}

func (e *Engine) Create(ctx context.Context, path string) (filestore.WriteCloser, error) {
	if err := e.ensureParent(path); err != nil {
		return nil, err
	}
	return e.fs.Create(path)
}

func (e *Engine) OpenFile(ctx context.Context, path string, flag int, perm os.FileMode) (filestore.WriteSeekCloser, error) {
	if err := e.ensureParent(path); err != nil {
		return nil, err
	}
	return e.fs.OpenFile(path, flag, perm)
}

func (e *Engine) Remove(ctx context.Context, path string) error {
	return e.fs.RemoveAll(path)
}

func (e *Engine) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := e.ensureParent(newPath); err != nil {
		return err
	}
	return e.fs.Rename(oldPath, newPath)
}

func (e *Engine) MkdirAll(ctx context.Context, path string) error {
	return e.fs.MkdirAll(path, dirPerm)
}

func (e *Engine) ReadDir(ctx context.Context, path string) ([]*filestore.EntryInfo, error) {
	infos, err := afero.ReadDir(e.fs, path)
	if err != nil {
		return nil, err
	}
	entries := make([]*filestore.EntryInfo, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, entryOf(filepath.Join(path, info.Name()), info))
	}
	return entries, nil
}

// Copy duplicates a file or a whole directory tree.
func (e *Engine) Copy(ctx context.Context, src, dst string) error {
	info, err := e.fs.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return e.copyFile(src, dst)
	}
	return afero.Walk(e.fs, src, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			return e.fs.MkdirAll(target, dirPerm)
		}
		return e.copyFile(p, target)
	})
}

func (e *Engine) copyFile(src, dst string) error {
	in, err := e.fs.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	return e.Put(context.Background(), dst, in)
}

var hashes = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
}

// Hash returns the hex digest of a file for "md5", "sha1" or "sha256".
func (e *Engine) Hash(ctx context.Context, path string, algorithm string) (string, error) {
	newHash, ok := hashes[algorithm]
	if !ok {
		return "", fmt.Errorf("%w: hash %q", filestore.ErrNotSupported, algorithm)
	}
	f, err := e.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get opens a file for streaming reads.
func (e *Engine) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	return e.Open(ctx, path)
}

// Put writes everything from reader to path, reporting close failures.
func (e *Engine) Put(ctx context.Context, path string, reader io.Reader) (err error) {
	w, err := e.Create(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(w, reader)
	return err
}

var (
	_ filestore.StorageEngine = (*Engine)(nil)
	_ filestore.Copier        = (*Engine)(nil)
	_ filestore.Hasher        = (*Engine)(nil)
	_ filestore.StreamReader  = (*Engine)(nil)
	_ filestore.StreamWriter  = (*Engine)(nil)
)
