// Package rclone exposes any rclone remote ("gdrive:backup", ":webdav,url=...:")
// as a storage engine. Importing it registers the "rclone" driver; the rclone
// backends themselves still have to be imported by the program.
package rclone

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/hash"
	"github.com/rclone/rclone/fs/operations"
	"github.com/rclone/rclone/fs/walk"

	"github.com/nuln/filestore"
)

func init() {
	filestore.Register("rclone", func(cfg *filestore.Config) (filestore.StorageEngine, error) {
		remote := cfg.String("remote", cfg.BasePath)
		if remote == "" {
			return nil, errors.New("filestore/rclone: remote is required (Options[\"remote\"] or BasePath)")
		}
		return New(context.Background(), remote)
	})
}

// Engine implements filestore.StorageEngine on an rclone fs.Fs.
type Engine struct {
	remote fs.Fs
}

// New connects to remotePath.
func New(ctx context.Context, remotePath string) (*Engine, error) {
	remote, err := fs.NewFs(ctx, remotePath)
	if err != nil {
		return nil, fmt.Errorf("filestore/rclone: open %q: %w", remotePath, err)
	}
	return &Engine{remote: remote}, nil
}

// NewWithFs wraps an already configured rclone filesystem.
func NewWithFs(remote fs.Fs) *Engine {
	return &Engine{remote: remote}
}

func convertError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrorObjectNotFound), errors.Is(err, fs.ErrorDirNotFound):
		return fmt.Errorf("%w: %v", filestore.ErrNotFound, err)
	case errors.Is(err, fs.ErrorIsDir):
		return filestore.ErrIsDir
	}
	return err
}

func entryOf(ctx context.Context, p string, entry fs.DirEntry) *filestore.EntryInfo {
	info := &filestore.EntryInfo{
		Name: path.Base(entry.Remote()),
		Path: p,
	}
	if obj, ok := entry.(fs.Object); ok {
		info.Size = obj.Size()
		info.ModTime = obj.ModTime(ctx)
	} else {
		info.IsDir = true
	}
	return info
}

func (e *Engine) Stat(ctx context.Context, p string) (*filestore.EntryInfo, error) {
	if strings.Trim(p, "/") == "" {
		return &filestore.EntryInfo{Name: "/", Path: p, IsDir: true}, nil
	}
	obj, err := e.remote.NewObject(ctx, p)
	if err == nil {
		return entryOf(ctx, p, obj), nil
	}
	if entries, dirErr := e.remote.List(ctx, p); dirErr == nil && len(entries) > 0 {
		return &filestore.EntryInfo{Name: path.Base(p), Path: p, IsDir: true}, nil
	}
	return nil, convertError(err)
}

// Open downloads the object into a temporary file so the result can seek.
// The temporary file is removed on Close. Use Get for plain streaming.
func (e *Engine) Open(ctx context.Context, p string) (filestore.ReadSeekCloser, error) {
	src, err := e.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp("", "filestore-rclone-*")
	if err != nil {
		return nil, err
	}
	spool := &spoolFile{File: tmp}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = spool.Close()
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		_ = spool.Close()
		return nil, err
	}
	return spool, nil
}

// spoolFile deletes its backing temporary file on Close.
type spoolFile struct {
	*os.File
}

func (s *spoolFile) Close() error {
	err := s.File.Close()
	_ = os.Remove(s.File.Name())
	return err
}

// Create streams writes to the remote through a pipe. The upload runs while
// the caller writes; Close waits for it and returns its error.
func (e *Engine) Create(ctx context.Context, p string) (filestore.WriteCloser, error) {
	pr, pw := io.Pipe()
	u := &upload{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := operations.Rcat(ctx, e.remote, p, pr, time.Now(), nil)
		_ = pr.CloseWithError(err)
		u.done <- err
	}()
	return u, nil
}

type upload struct {
	pw     *io.PipeWriter
	done   chan error
	closed bool
}

func (u *upload) Write(p []byte) (int, error) {
	return u.pw.Write(p)
}

func (u *upload) Close() error {
	if u.closed {
		return filestore.ErrClosed
	}
	u.closed = true
	_ = u.pw.Close()
	return <-u.done
}

// OpenFile buffers the whole file in memory and uploads it on Close. With
// os.O_APPEND the current content is downloaded first.
func (e *Engine) OpenFile(ctx context.Context, p string, flag int, perm os.FileMode) (filestore.WriteSeekCloser, error) {
	w := &bufferedUpload{engine: e, ctx: ctx, path: p}
	if flag&os.O_APPEND != 0 && flag&os.O_TRUNC == 0 {
		if src, err := e.Get(ctx, p); err == nil {
			existing, err := io.ReadAll(src)
			_ = src.Close()
			if err != nil {
				return nil, err
			}
			w.buf = existing
			w.off = int64(len(existing))
		}
	}
	return w, nil
}

type bufferedUpload struct {
	engine *Engine
	ctx    context.Context
	path   string
	buf    []byte
	off    int64
}

func (w *bufferedUpload) Write(p []byte) (int, error) {
	end := w.off + int64(len(p))
	if end > int64(len(w.buf)) {
		w.buf = append(w.buf, make([]byte, end-int64(len(w.buf)))...)
	}
	copy(w.buf[w.off:end], p)
	w.off = end
	return len(p), nil
}

func (w *bufferedUpload) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = w.off + offset
	case io.SeekEnd:
		next = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("filestore/rclone: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("filestore/rclone: negative position")
	}
	w.off = next
	return next, nil
}

func (w *bufferedUpload) Close() error {
	return w.engine.Put(w.ctx, w.path, bytes.NewReader(w.buf))
}

func (e *Engine) Remove(ctx context.Context, p string) error {
	obj, err := e.remote.NewObject(ctx, p)
	if err != nil {
		return convertError(operations.Purge(ctx, e.remote, p))
	}
	return obj.Remove(ctx)
}

func (e *Engine) Rename(ctx context.Context, oldPath, newPath string) error {
	return convertError(operations.MoveFile(ctx, e.remote, e.remote, newPath, oldPath))
}

func (e *Engine) MkdirAll(ctx context.Context, p string) error {
	return e.remote.Mkdir(ctx, p)
}

func (e *Engine) ReadDir(ctx context.Context, dir string) ([]*filestore.EntryInfo, error) {
	entries, err := e.remote.List(ctx, dir)
	if err != nil {
		return nil, convertError(err)
	}
	result := make([]*filestore.EntryInfo, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entryOf(ctx, entry.Remote(), entry))
	}
	return result, nil
}

// ListKeys walks the remote recursively below the directory part of prefix.
func (e *Engine) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	root := ""
	if i := strings.LastIndex(prefix, "/"); i > 0 {
		root = prefix[:i]
	}
	var keys []string
	err := walk.Walk(ctx, e.remote, root, true, -1, func(_ string, entries fs.DirEntries, err error) error {
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if _, ok := entry.(fs.Object); ok && strings.HasPrefix(entry.Remote(), prefix) {
				keys = append(keys, entry.Remote())
			}
		}
		return nil
	})
	if errors.Is(err, fs.ErrorDirNotFound) {
		return nil, nil
	}
	return keys, convertError(err)
}

// Get streams the object without buffering.
func (e *Engine) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	obj, err := e.remote.NewObject(ctx, p)
	if err != nil {
		return nil, convertError(err)
	}
	return obj.Open(ctx)
}

// GetRange streams length bytes from offset; length <= 0 reads to the end.
func (e *Engine) GetRange(ctx context.Context, p string, offset, length int64) (io.ReadCloser, error) {
	obj, err := e.remote.NewObject(ctx, p)
	if err != nil {
		return nil, convertError(err)
	}
	end := int64(-1)
	if length > 0 {
		end = offset + length - 1
	}
	return obj.Open(ctx, &fs.RangeOption{Start: offset, End: end})
}

// Put uploads everything read from reader.
func (e *Engine) Put(ctx context.Context, p string, reader io.Reader) error {
	rc, ok := reader.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(reader)
	}
	_, err := operations.Rcat(ctx, e.remote, p, rc, time.Now(), nil)
	return err
}

var hashTypes = map[string]hash.Type{
	"md5":    hash.MD5,
	"sha1":   hash.SHA1,
	"sha256": hash.SHA256,
}

// Hash asks the remote for a checksum. Remotes that do not track the
// algorithm report filestore.ErrNotSupported.
func (e *Engine) Hash(ctx context.Context, p string, algorithm string) (string, error) {
	ht, ok := hashTypes[algorithm]
	if !ok {
		return "", fmt.Errorf("%w: hash %q", filestore.ErrNotSupported, algorithm)
	}
	obj, err := e.remote.NewObject(ctx, p)
	if err != nil {
		return "", convertError(err)
	}
	sum, err := obj.Hash(ctx, ht)
	if errors.Is(err, hash.ErrUnsupported) || (err == nil && sum == "") {
		return "", filestore.ErrNotSupported
	}
	return sum, err
}

func (e *Engine) Copy(ctx context.Context, src, dst string) error {
	return convertError(operations.CopyFile(ctx, e.remote, e.remote, dst, src))
}

func (e *Engine) SignedURL(ctx context.Context, p string, expiry time.Duration) (string, error) {
	linker, ok := e.remote.(fs.PublicLinker)
	if !ok {
		return "", filestore.ErrNotSupported
	}
	return linker.PublicLink(ctx, p, fs.Duration(expiry), false)
}

var (
	_ filestore.StorageEngine      = (*Engine)(nil)
	_ filestore.StreamReader       = (*Engine)(nil)
	_ filestore.StreamWriter       = (*Engine)(nil)
	_ filestore.RangeReader        = (*Engine)(nil)
	_ filestore.KeyLister          = (*Engine)(nil)
	_ filestore.Hasher             = (*Engine)(nil)
	_ filestore.Copier             = (*Engine)(nil)
	_ filestore.SignedURLGenerator = (*Engine)(nil)
)
