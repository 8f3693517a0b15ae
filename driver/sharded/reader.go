package sharded

import (
	"errors"
	"fmt"
	"io"

	"github.com/nuln/filestore"
)

// reader presents the chunks listed in a manifest as one seekable stream.
type reader struct {
	engine   *Engine
	manifest *filestore.Manifest
	offset   int64
}

func (r *reader) Read(p []byte) (int, error) {
	if r.offset >= r.manifest.Size {
		return 0, io.EOF
	}

	total := 0
	for len(p) > 0 && r.offset < r.manifest.Size {
		idx, inChunk, length, ok := r.manifest.ChunkAt(r.offset, r.engine.chunkSize)
		if !ok {
			return total, io.ErrUnexpectedEOF
		}
		want := min(int64(len(p)), length-inChunk)
		n, err := r.readChunk(r.manifest.Chunks[idx], inChunk, p[:want])
		total += n
		r.offset += int64(n)
		p = p[n:]
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrUnexpectedEOF
		}
	}
	return total, nil
}

func (r *reader) readChunk(hash string, off int64, p []byte) (int, error) {
	f, err := r.engine.shards.Open(shardFile(hash))
	if err != nil {
		return 0, fmt.Errorf("filestore/sharded: chunk %s: %w", hash, err)
	}
	defer func() { _ = f.Close() }()

	n, err := f.ReadAt(p, off)
	if errors.Is(err, io.EOF) && n == len(p) {
		err = nil
	}
	return n, err
}

func (r *reader) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = r.offset + offset
	case io.SeekEnd:
		next = r.manifest.Size + offset
	default:
		return 0, errors.New("filestore/sharded: invalid whence")
	}
	if next < 0 || next > r.manifest.Size {
		return 0, errors.New("filestore/sharded: seek offset out of range")
	}
	r.offset = next
	return next, nil
}

func (r *reader) Close() error {
	return nil
}
