package filestore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// Mode is the access mode a [Stream] is opened in.
type Mode int

const (
	// ModeRead opens for sequential binary reading.
	ModeRead Mode = iota
	// ModeWriteTruncate creates the target or truncates it, for binary writing.
	ModeWriteTruncate
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "rb"
	case ModeWriteTruncate:
		return "wb+"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Stream is a sequential handle to file content with explicit lifecycle:
// Open, then Read/EOF or Write/Flush, then Close exactly once.
type Stream interface {
	// Open prepares the stream in the given mode.
	Open(mode Mode) error

	// Read returns up to n bytes. It returns fewer only at end of stream, in
	// which case EOF reports true afterwards. Reaching the end is not an error.
	Read(n int) ([]byte, error)

	// Write writes p in full or returns an error.
	Write(p []byte) (int, error)

	// EOF reports whether a read has hit the end of the stream.
	EOF() bool

	// Flush pushes buffered writes to the underlying storage.
	Flush() error

	// Close releases the stream. Closing twice returns ErrClosed.
	Close() error
}

// writeBufferSize bounds how much a write stream holds before Flush.
const writeBufferSize = 64 * 1024

type syncer interface {
	Sync() error
}

// handleStream adapts an opener pair to [Stream]. Every concrete stream in
// this package is a handleStream with different openers.
type handleStream struct {
	name      string
	openRead  func() (io.ReadCloser, error)
	openWrite func() (io.WriteCloser, error)

	r      io.ReadCloser
	wc     io.WriteCloser
	w      *bufio.Writer
	eof    bool
	closed bool
}

func (s *handleStream) Open(mode Mode) error {
	if s.closed {
		return ErrClosed
	}
	if s.r != nil || s.wc != nil {
		return fmt.Errorf("filestore: stream %q already open", s.name)
	}
	switch mode {
	case ModeRead:
		if s.openRead == nil {
			return fmt.Errorf("%w: %s on %q", ErrInvalidMode, mode, s.name)
		}
		r, err := s.openRead()
		if err != nil {
			return err
		}
		s.r = r
	case ModeWriteTruncate:
		if s.openWrite == nil {
			return fmt.Errorf("%w: %s on %q", ErrInvalidMode, mode, s.name)
		}
		wc, err := s.openWrite()
		if err != nil {
			return err
		}
		s.wc = wc
		s.w = bufio.NewWriterSize(wc, writeBufferSize)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	return nil
}

func (s *handleStream) Read(n int) ([]byte, error) {
	if s.r == nil || s.closed {
		return nil, ErrStreamNotOpen
	}
	if n <= 0 || s.eof {
		return nil, nil
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(s.r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		s.eof = true
		err = nil
	}
	return buf[:read], err
}

func (s *handleStream) Write(p []byte) (int, error) {
	if s.w == nil || s.closed {
		return 0, ErrStreamNotOpen
	}
	return s.w.Write(p)
}

func (s *handleStream) EOF() bool {
	return s.eof
}

func (s *handleStream) Flush() error {
	if s.w == nil || s.closed {
		return ErrStreamNotOpen
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	if sy, ok := s.wc.(syncer); ok {
		return sy.Sync()
	}
	return nil
}

func (s *handleStream) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	switch {
	case s.r != nil:
		return s.r.Close()
	case s.wc != nil:
		return s.wc.Close()
	}
	return nil
}

// NewEngineStream returns an unopened stream over path in engine. Reads use
// the engine's [StreamReader] extension when it has one.
func NewEngineStream(ctx context.Context, engine StorageEngine, path string) Stream {
	return &handleStream{
		name: path,
		openRead: func() (io.ReadCloser, error) {
			return openReader(ctx, engine, path)
		},
		openWrite: func() (io.WriteCloser, error) {
			return engine.Create(ctx, path)
		},
	}
}

func openReader(ctx context.Context, engine StorageEngine, path string) (io.ReadCloser, error) {
	if sr, ok := engine.(StreamReader); ok {
		return sr.Get(ctx, path)
	}
	return engine.Open(ctx, path)
}

// NewLocalStream returns an unopened stream over a path on fs, normally the
// local disk (afero.NewOsFs). Flush syncs the file.
func NewLocalStream(fs afero.Fs, path string) Stream {
	return &handleStream{
		name: path,
		openRead: func() (io.ReadCloser, error) {
			return fs.Open(path)
		},
		openWrite: func() (io.WriteCloser, error) {
			return fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
		},
	}
}

// NewReaderStream returns a read-only stream over r. If r is an io.Closer it
// is closed with the stream.
func NewReaderStream(r io.Reader) Stream {
	return &handleStream{
		name: "reader",
		openRead: func() (io.ReadCloser, error) {
			if rc, ok := r.(io.ReadCloser); ok {
				return rc, nil
			}
			return io.NopCloser(r), nil
		},
	}
}
