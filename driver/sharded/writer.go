package sharded

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"path"
	"time"

	"github.com/spf13/afero"

	"github.com/nuln/filestore"
)

// writer cuts incoming bytes into chunks, stores each chunk under its sha256
// unless it already exists, and records the manifest on Close.
type writer struct {
	engine *Engine
	path   string
	hashes []string
	sizes  []int64
	size   int64
	buf    *[]byte
	closed bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, filestore.ErrClosed
	}
	written := 0
	for len(p) > 0 {
		pending := *w.buf
		room := int(w.engine.chunkSize) - len(pending)
		take := min(room, len(p))
		*w.buf = append(pending, p[:take]...)
		p = p[take:]
		written += take
		w.size += int64(take)
		if len(*w.buf) == int(w.engine.chunkSize) {
			if err := w.cut(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// cut stores the pending bytes as a chunk.
func (w *writer) cut() error {
	chunk := *w.buf
	if len(chunk) == 0 {
		return nil
	}
	sum := sha256.Sum256(chunk)
	hash := hex.EncodeToString(sum[:])
	name := shardFile(hash)

	if exists, _ := afero.Exists(w.engine.shards, name); !exists {
		if err := w.engine.shards.MkdirAll(path.Dir(name), dirPerm); err != nil {
			return err
		}
		if err := afero.WriteFile(w.engine.shards, name, chunk, filePerm); err != nil {
			return err
		}
	}

	w.hashes = append(w.hashes, hash)
	w.sizes = append(w.sizes, int64(len(chunk)))
	*w.buf = chunk[:0]
	return nil
}

// Seek only accepts positioning at the current end, which is what resumable
// upload protocols do before appending.
func (w *writer) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekStart && offset == w.size {
		return w.size, nil
	}
	return 0, errors.New("filestore/sharded: seek only supported to current end")
}

func (w *writer) Close() error {
	if w.closed {
		return filestore.ErrClosed
	}
	w.closed = true
	defer w.release()

	if err := w.cut(); err != nil {
		return err
	}
	return w.engine.saveManifest(w.path, &filestore.Manifest{
		Chunks:     w.hashes,
		ChunkSizes: w.sizes,
		Size:       w.size,
		ModTime:    time.Now(),
	})
}

func (w *writer) release() {
	*w.buf = (*w.buf)[:0]
	w.engine.buffers.Put(w.buf)
	w.buf = nil
}
