package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/nuln/filestore"
)

// Backend is the storage capability the manager drives.
// *filestore.Filesystem implements it for every registered driver.
type Backend interface {
	Has(ctx context.Context, name string) (bool, error)
	Get(ctx context.Context, name string) (*filestore.File, error)
	CreateStream(ctx context.Context, name string) (filestore.Stream, error)
	Delete(ctx context.Context, name string) error
	ListKeys(ctx context.Context, prefix string) (filestore.Keys, error)

	// RemoveFromRegister drops any cached handle for name.
	RemoveFromRegister(name string)
}

var _ Backend = (*filestore.Filesystem)(nil)

// TempFile is a file written to the local temporary directory. The caller
// owns it; DeleteOnClose is always false.
type TempFile struct {
	Path          string
	DeleteOnClose bool
}

// Manager is a facade over one named backend.
type Manager struct {
	backend   Backend
	name      string
	protocol  string
	batchSize int

	local    afero.Fs
	tempDirs TempDirProvider
	newToken func() string
	log      *slog.Logger
}

// New returns a Manager for backend. cfg.Name must be set.
func New(backend Backend, cfg Config, opts ...Option) (*Manager, error) {
	if backend == nil {
		return nil, invalidArgument("backend")
	}
	if cfg.Name == "" {
		return nil, invalidArgument("backend name")
	}

	m := &Manager{
		backend:   backend,
		name:      cfg.Name,
		protocol:  cfg.Protocol,
		batchSize: cfg.batchSize(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.local == nil {
		m.local = afero.NewOsFs()
	}
	if m.tempDirs == nil {
		m.tempDirs = uploadTempDir{fs: m.local, preferred: cfg.UploadTempDir}
	}
	if m.newToken == nil {
		m.newToken = timeOrderedToken
	}
	if m.log == nil {
		m.log = slog.New(slog.DiscardHandler)
	}
	m.log = m.log.With("backend", m.name)
	return m, nil
}

// Name returns the logical backend name.
func (m *Manager) Name() string { return m.name }

// FilePath returns "protocol://name/fileName".
func (m *Manager) FilePath(fileName string) (string, error) {
	if m.protocol == "" {
		return "", ErrProtocolNotConfigured
	}
	return m.protocol + "://" + m.name + "/" + fileName, nil
}

// FindFiles returns the sorted names of all files starting with prefix.
func (m *Manager) FindFiles(ctx context.Context, prefix string) ([]string, error) {
	keys, err := m.backend.ListKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if keys.Keys == nil {
		return []string{}, nil
	}
	return keys.Keys, nil
}

// HasFile reports whether fileName exists.
func (m *Manager) HasFile(ctx context.Context, fileName string) (bool, error) {
	if fileName == "" {
		return false, invalidArgument("file name")
	}
	return m.backend.Has(ctx, fileName)
}

// GetFile returns the file, or an error wrapping ErrNotFound.
func (m *Manager) GetFile(ctx context.Context, fileName string) (*filestore.File, error) {
	if fileName == "" {
		return nil, invalidArgument("file name")
	}
	return m.backend.Get(ctx, fileName)
}

// LookupFile is GetFile that reports a missing file with ok == false instead
// of an error.
func (m *Manager) LookupFile(ctx context.Context, fileName string) (file *filestore.File, ok bool, err error) {
	if ok, err = m.HasFile(ctx, fileName); err != nil || !ok {
		return nil, false, err
	}
	file, err = m.backend.Get(ctx, fileName)
	if err != nil {
		return nil, false, err
	}
	return file, true, nil
}

// GetStream returns an unopened stream over an existing file. The caller
// opens and closes it.
func (m *Manager) GetStream(ctx context.Context, fileName string) (filestore.Stream, error) {
	s, ok, err := m.LookupStream(ctx, fileName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrNotFound, fileName, m.name)
	}
	return s, nil
}

// LookupStream is GetStream that reports a missing file with ok == false.
func (m *Manager) LookupStream(ctx context.Context, fileName string) (filestore.Stream, bool, error) {
	ok, err := m.HasFile(ctx, fileName)
	if err != nil || !ok {
		return nil, false, err
	}
	s, err := m.backend.CreateStream(ctx, fileName)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// GetFileContent returns the full content of fileName.
func (m *Manager) GetFileContent(ctx context.Context, fileName string) ([]byte, error) {
	file, err := m.GetFile(ctx, fileName)
	if err != nil {
		return nil, err
	}
	return file.Content(ctx)
}

// LookupFileContent is GetFileContent that reports a missing file with
// ok == false.
func (m *Manager) LookupFileContent(ctx context.Context, fileName string) ([]byte, bool, error) {
	file, ok, err := m.LookupFile(ctx, fileName)
	if err != nil || !ok {
		return nil, false, err
	}
	content, err := file.Content(ctx)
	if err != nil {
		return nil, false, err
	}
	return content, true, nil
}

// DeleteFile removes fileName. An empty name makes no backend call, and a
// file that is already gone is not an error.
func (m *Manager) DeleteFile(ctx context.Context, fileName string) error {
	if fileName == "" {
		return nil
	}
	err := m.backend.Delete(ctx, fileName)
	if errors.Is(err, filestore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	m.log.Debug("file deleted", "file", fileName)
	return nil
}

// DeleteAllFiles removes every file. It stops at the first failure and leaves
// the remaining files in place.
func (m *Manager) DeleteAllFiles(ctx context.Context) error {
	names, err := m.FindFiles(ctx, "")
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := m.DeleteFile(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// WriteToStorage stores content under fileName, replacing any previous file.
func (m *Manager) WriteToStorage(ctx context.Context, content []byte, fileName string) (err error) {
	if fileName == "" {
		return invalidArgument("file name")
	}
	dst, err := m.openDestination(ctx, fileName)
	if err != nil {
		return err
	}
	defer func() {
		m.backend.RemoveFromRegister(fileName)
		err = errors.Join(err, m.flushAndClose(dst, fileName))
	}()

	if _, err := dst.Write(content); err != nil {
		return err
	}
	m.log.Debug("file written", "file", fileName, "size", len(content))
	return nil
}

// WriteFileToStorage copies the local file at localPath to fileName.
func (m *Manager) WriteFileToStorage(ctx context.Context, localPath, fileName string) error {
	if localPath == "" {
		return invalidArgument("local path")
	}
	_, err := m.WriteStreamToStorage(ctx, filestore.NewLocalStream(m.local, localPath), fileName, false)
	return err
}

// WriteStreamToStorage opens src for reading and copies it to fileName in
// batches. With avoidEmpty, a source whose first read is empty and at EOF
// creates nothing and false is returned. src is closed in every case, and
// written is false whenever an error is returned.
func (m *Manager) WriteStreamToStorage(ctx context.Context, src filestore.Stream, fileName string, avoidEmpty bool) (written bool, err error) {
	if fileName == "" {
		return false, invalidArgument("file name")
	}
	if src == nil {
		return false, invalidArgument("source stream")
	}

	if err := src.Open(filestore.ModeRead); err != nil {
		_ = src.Close()
		return false, err
	}
	defer func() {
		err = errors.Join(err, src.Close())
		if err != nil {
			written = false
		}
	}()

	var first []byte
	if avoidEmpty {
		if first, err = src.Read(m.batchSize); err != nil {
			return false, err
		}
		if len(first) == 0 && src.EOF() {
			m.log.Debug("empty stream not written", "file", fileName)
			return false, nil
		}
	}

	dst, err := m.openDestination(ctx, fileName)
	if err != nil {
		return false, err
	}
	defer func() {
		m.backend.RemoveFromRegister(fileName)
		err = errors.Join(err, m.flushAndClose(dst, fileName))
	}()

	n, err := m.copyBatches(src, dst, first)
	if err != nil {
		return false, err
	}
	m.log.Debug("stream written", "file", fileName, "size", n)
	return true, nil
}

func (m *Manager) openDestination(ctx context.Context, fileName string) (filestore.Stream, error) {
	dst, err := m.backend.CreateStream(ctx, fileName)
	if err != nil {
		return nil, err
	}
	if err := dst.Open(filestore.ModeWriteTruncate); err != nil {
		_ = dst.Close()
		return nil, err
	}
	return dst, nil
}

// copyBatches writes first, then the rest of src, to dst.
func (m *Manager) copyBatches(src, dst filestore.Stream, first []byte) (int64, error) {
	var total int64
	write := func(p []byte) error {
		if len(p) == 0 {
			return nil
		}
		n, err := dst.Write(p)
		total += int64(n)
		return err
	}

	if err := write(first); err != nil {
		return total, err
	}
	for !src.EOF() {
		chunk, err := src.Read(m.batchSize)
		if err != nil {
			return total, err
		}
		if err := write(chunk); err != nil {
			return total, err
		}
	}
	return total, nil
}

// flushAndClose flushes then closes stream. The close happens even when the
// flush fails, and the flush failure is reported as ErrFlushFailed.
func (m *Manager) flushAndClose(stream filestore.Stream, fileName string) error {
	flushErr := stream.Flush()
	closeErr := stream.Close()
	if flushErr != nil {
		return errors.Join(fmt.Errorf("%w: %q: %w", ErrFlushFailed, fileName, flushErr), closeErr)
	}
	return closeErr
}

// WriteToTemporaryFile writes content to a new local temporary file named
// after originalName when that name is free.
func (m *Manager) WriteToTemporaryFile(content []byte, originalName string) (*TempFile, error) {
	path, err := m.TemporaryFileName(originalName)
	if err != nil {
		return nil, err
	}
	if err := afero.WriteFile(m.local, path, content, 0o600); err != nil {
		return nil, fmt.Errorf("%w: write %s: %w", ErrIO, path, err)
	}
	m.log.Debug("temporary file written", "path", path, "size", len(content))
	return &TempFile{Path: path}, nil
}

// WriteStreamToTemporaryFile copies src into a new local temporary file.
// Empty sources still produce a file. src is closed in every case, and on
// failure the partly written file is removed.
func (m *Manager) WriteStreamToTemporaryFile(src filestore.Stream, originalName string) (tmp *TempFile, err error) {
	if src == nil {
		return nil, invalidArgument("source stream")
	}
	if err := src.Open(filestore.ModeRead); err != nil {
		_ = src.Close()
		return nil, err
	}

	var partial string
	defer func() {
		err = errors.Join(err, src.Close())
		if err == nil {
			return
		}
		tmp = nil
		if partial != "" {
			if rmErr := m.local.Remove(partial); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				err = errors.Join(err, fmt.Errorf("%w: remove %s: %w", ErrIO, partial, rmErr))
			}
		}
	}()

	path, err := m.TemporaryFileName(originalName)
	if err != nil {
		return nil, err
	}
	dst := filestore.NewLocalStream(m.local, path)
	if err := dst.Open(filestore.ModeWriteTruncate); err != nil {
		_ = dst.Close()
		return nil, fmt.Errorf("%w: create %s: %w", ErrIO, path, err)
	}
	partial = path
	defer func() {
		err = errors.Join(err, m.flushAndClose(dst, path))
	}()

	n, err := m.copyBatches(src, dst, nil)
	if err != nil {
		return nil, err
	}
	m.log.Debug("temporary file written", "path", path, "size", n)
	return &TempFile{Path: path}, nil
}

// TemporaryFileName returns a path in the temporary directory that is free
// at the time of the call. A free suggested name is used as is; otherwise a
// generated name keeps the suggested name's extension.
func (m *Manager) TemporaryFileName(suggested string) (string, error) {
	dir := withTrailingSeparator(m.tempDirs.TempDir())

	if base := filepath.Base(suggested); suggested != "" && base != "." && base != string(filepath.Separator) {
		taken, err := afero.Exists(m.local, dir+base)
		if err != nil {
			return "", fmt.Errorf("%w: stat %s: %w", ErrIO, dir+base, err)
		}
		if !taken {
			return dir + base, nil
		}
	}

	ext := strings.TrimPrefix(filepath.Ext(suggested), ".")
	for {
		path := dir + m.GenerateFileName(ext)
		taken, err := afero.Exists(m.local, path)
		if err != nil {
			return "", fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
		}
		if !taken {
			return path, nil
		}
	}
}

// GenerateFileName returns a unique, time-ordered name with ext appended
// when it is not empty.
func (m *Manager) GenerateFileName(ext string) string {
	name := m.newToken()
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		name += "." + ext
	}
	return name
}

func timeOrderedToken() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return strings.ReplaceAll(id.String(), "-", "")
}
