// Package sharded stores files as content-addressed chunks. Each logical file
// is a JSON manifest listing chunk hashes; identical chunks are stored once, so
// several engines sharing a chunk filesystem deduplicate each other's data.
// Importing it registers the "sharded" driver.
package sharded

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/nuln/filestore"
)

// DefaultChunkSize is used when no positive chunk size is configured (4 MiB).
const DefaultChunkSize = 4 << 20

const (
	manifestRoot = "manifests"
	manifestExt  = ".json"
	dirPerm      = 0o750
	filePerm     = 0o640
)

func init() {
	filestore.Register("sharded", func(cfg *filestore.Config) (filestore.StorageEngine, error) {
		base := cfg.BasePath
		if base == "" {
			base = "./data"
		}
		manifestDir := cfg.String("manifestDir", filepath.Join(base, "manifest"))
		shardsDir := cfg.String("shardsDir", filepath.Join(base, "shards"))
		for _, dir := range []string{manifestDir, shardsDir} {
			if err := os.MkdirAll(dir, dirPerm); err != nil {
				return nil, fmt.Errorf("filestore/sharded: create %q: %w", dir, err)
			}
		}
		return New(
			afero.NewBasePathFs(afero.NewOsFs(), manifestDir),
			afero.NewBasePathFs(afero.NewOsFs(), shardsDir),
			cfg.Int64("chunkSize", DefaultChunkSize),
		), nil
	})
}

// Engine implements filestore.StorageEngine on top of two afero filesystems:
// one for manifests mirroring the logical tree, one for chunk blobs.
type Engine struct {
	manifests afero.Fs
	shards    afero.Fs
	chunkSize int64
	buffers   sync.Pool
}

// New returns an Engine. manifests and shards may be the same filesystem.
func New(manifests, shards afero.Fs, chunkSize int64) *Engine {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	e := &Engine{
		manifests: manifests,
		shards:    shards,
		chunkSize: chunkSize,
	}
	e.buffers.New = func() any {
		b := make([]byte, 0, e.chunkSize)
		return &b
	}
	return e
}

// ChunkSize returns the size chunks are cut at.
func (e *Engine) ChunkSize() int64 { return e.chunkSize }

// logical normalizes a caller path; the root is "".
func logical(p string) string {
	clean := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(p)), "/")
	if clean == "." {
		return ""
	}
	return clean
}

// manifestFile maps "docs/a.txt" to "manifests/docs/a.txt.json".
func manifestFile(p string) string {
	if l := logical(p); l != "" {
		return path.Join(manifestRoot, l+manifestExt)
	}
	return manifestRoot
}

// manifestDir maps "docs" to "manifests/docs".
func manifestDir(p string) string {
	return path.Join(manifestRoot, logical(p))
}

func shardFile(hash string) string {
	return filestore.HashPath(hash)
}

func (e *Engine) loadManifest(p string) (*filestore.Manifest, error) {
	data, err := afero.ReadFile(e.manifests, manifestFile(p))
	if err != nil {
		return nil, err
	}
	var m filestore.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("filestore/sharded: manifest for %q: %w", p, err)
	}
	return &m, nil
}

func (e *Engine) saveManifest(p string, m *filestore.Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	name := manifestFile(p)
	if err := e.manifests.MkdirAll(path.Dir(name), dirPerm); err != nil {
		return err
	}
	return afero.WriteFile(e.manifests, name, data, filePerm)
}

func (e *Engine) isFile(p string) bool {
	ok, _ := afero.Exists(e.manifests, manifestFile(p))
	return ok && logical(p) != ""
}

func (e *Engine) Stat(ctx context.Context, p string) (*filestore.EntryInfo, error) {
	l := logical(p)
	if l == "" {
		return &filestore.EntryInfo{Name: "/", Path: p, IsDir: true}, nil
	}
	if m, err := e.loadManifest(p); err == nil {
		return &filestore.EntryInfo{
			Name:    path.Base(l),
			Path:    p,
			Size:    m.Size,
			ModTime: m.ModTime,
			Mode:    filePerm,
		}, nil
	}
	info, err := e.manifests.Stat(manifestDir(p))
	if err == nil && info.IsDir() {
		return &filestore.EntryInfo{
			Name:    path.Base(l),
			Path:    p,
			ModTime: info.ModTime(),
			Mode:    dirPerm,
			IsDir:   true,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", filestore.ErrNotFound, p)
}

func (e *Engine) Open(ctx context.Context, p string) (filestore.ReadSeekCloser, error) {
	m, err := e.loadManifest(p)
	if err != nil {
		return nil, err
	}
	return &reader{engine: e, manifest: m}, nil
}

func (e *Engine) Create(ctx context.Context, p string) (filestore.WriteCloser, error) {
	return e.OpenFile(ctx, p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
}

// OpenFile supports truncating writes and appends (os.O_APPEND without
// os.O_TRUNC). The manifest is only written on Close.
func (e *Engine) OpenFile(ctx context.Context, p string, flag int, perm os.FileMode) (filestore.WriteSeekCloser, error) {
	if logical(p) == "" {
		return nil, fmt.Errorf("%w: %q", filestore.ErrIsDir, p)
	}
	if err := e.manifests.MkdirAll(path.Dir(manifestFile(p)), dirPerm); err != nil {
		return nil, err
	}

	buf := e.buffers.Get().(*[]byte)
	w := &writer{engine: e, path: p, buf: buf}

	if flag&os.O_APPEND != 0 && flag&os.O_TRUNC == 0 {
		if m, err := e.loadManifest(p); err == nil {
			w.hashes = m.Chunks
			w.sizes = m.ChunkSizes
			w.size = m.Size
			if len(w.sizes) == 0 {
				w.sizes = fixedSizes(m, e.chunkSize)
			}
		}
	}
	return w, nil
}

// fixedSizes rebuilds per-chunk sizes for a manifest written with fixed chunks.
func fixedSizes(m *filestore.Manifest, chunk int64) []int64 {
	sizes := make([]int64, len(m.Chunks))
	remaining := m.Size
	for i := range sizes {
		sizes[i] = min(chunk, remaining)
		remaining -= sizes[i]
	}
	return sizes
}

// Remove drops manifests only. Chunks may be shared with other files or
// engines and are left for a separate garbage collection pass.
func (e *Engine) Remove(ctx context.Context, p string) error {
	if e.isFile(p) {
		return e.manifests.Remove(manifestFile(p))
	}
	return e.manifests.RemoveAll(manifestDir(p))
}

func (e *Engine) Rename(ctx context.Context, oldPath, newPath string) error {
	from, to := manifestDir(oldPath), manifestDir(newPath)
	if e.isFile(oldPath) {
		from, to = manifestFile(oldPath), manifestFile(newPath)
	}
	if err := e.manifests.MkdirAll(path.Dir(to), dirPerm); err != nil {
		return err
	}
	return e.manifests.Rename(from, to)
}

func (e *Engine) MkdirAll(ctx context.Context, p string) error {
	return e.manifests.MkdirAll(manifestDir(p), dirPerm)
}

func (e *Engine) ReadDir(ctx context.Context, p string) ([]*filestore.EntryInfo, error) {
	dir := manifestDir(p)
	infos, err := afero.ReadDir(e.manifests, dir)
	if os.IsNotExist(err) && logical(p) == "" {
		return []*filestore.EntryInfo{}, nil
	}
	if err != nil {
		return nil, err
	}

	entries := make([]*filestore.EntryInfo, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() {
			entries = append(entries, &filestore.EntryInfo{
				Name:    name,
				Path:    path.Join(logical(p), name),
				ModTime: info.ModTime(),
				Mode:    dirPerm,
				IsDir:   true,
			})
			continue
		}
		base, ok := strings.CutSuffix(name, manifestExt)
		if !ok {
			continue
		}
		child := path.Join(logical(p), base)
		entry := &filestore.EntryInfo{Name: base, Path: child, Mode: filePerm}
		if m, err := e.loadManifest(child); err == nil {
			entry.Size = m.Size
			entry.ModTime = m.ModTime
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Copy duplicates the manifest only; chunks are shared.
func (e *Engine) Copy(ctx context.Context, src, dst string) error {
	m, err := e.loadManifest(src)
	if err != nil {
		return err
	}
	return e.saveManifest(dst, m)
}

// Hash returns the sha256 of the logical content.
func (e *Engine) Hash(ctx context.Context, p string, algorithm string) (string, error) {
	if algorithm != "sha256" {
		return "", fmt.Errorf("%w: hash %q", filestore.ErrNotSupported, algorithm)
	}
	r, err := e.Open(ctx, p)
	if err != nil {
		return "", err
	}
	defer func() { _ = r.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

var (
	_ filestore.StorageEngine = (*Engine)(nil)
	_ filestore.Copier        = (*Engine)(nil)
	_ filestore.Hasher        = (*Engine)(nil)
)
