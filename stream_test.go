package filestore_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/nuln/filestore"
)

func TestReaderStreamBatches(t *testing.T) {
	s := filestore.NewReaderStream(strings.NewReader("abcdefg"))
	if err := s.Open(filestore.ModeRead); err != nil {
		t.Fatalf("Open: %v", err)
	}

	var got []string
	for !s.EOF() {
		chunk, err := s.Read(3)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, string(chunk))
	}
	want := []string{"abc", "def", "g"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("chunks = %q, want %q", got, want)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); !errors.Is(err, filestore.ErrClosed) {
		t.Errorf("second Close: err = %v, want ErrClosed", err)
	}
}

func TestReaderStreamExactBoundary(t *testing.T) {
	s := filestore.NewReaderStream(strings.NewReader("abcdef"))
	_ = s.Open(filestore.ModeRead)
	defer func() { _ = s.Close() }()

	reads := 0
	for !s.EOF() {
		if _, err := s.Read(3); err != nil {
			t.Fatalf("Read: %v", err)
		}
		reads++
	}
	// Two full reads, then an empty one that observes the end.
	if reads != 3 {
		t.Errorf("reads = %d, want 3", reads)
	}
}

func TestReaderStreamIsReadOnly(t *testing.T) {
	s := filestore.NewReaderStream(strings.NewReader(""))
	if err := s.Open(filestore.ModeWriteTruncate); !errors.Is(err, filestore.ErrInvalidMode) {
		t.Errorf("Open(write): err = %v, want ErrInvalidMode", err)
	}
}

func TestStreamNotOpen(t *testing.T) {
	s := filestore.NewLocalStream(afero.NewMemMapFs(), "/x")
	if _, err := s.Read(1); !errors.Is(err, filestore.ErrStreamNotOpen) {
		t.Errorf("Read: err = %v, want ErrStreamNotOpen", err)
	}
	if _, err := s.Write([]byte("x")); !errors.Is(err, filestore.ErrStreamNotOpen) {
		t.Errorf("Write: err = %v, want ErrStreamNotOpen", err)
	}
	if err := s.Flush(); !errors.Is(err, filestore.ErrStreamNotOpen) {
		t.Errorf("Flush: err = %v, want ErrStreamNotOpen", err)
	}
}

func TestLocalStreamWriteTruncate(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/out.txt", []byte("previous longer content"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := filestore.NewLocalStream(fs, "/out.txt")
	if err := s.Open(filestore.ModeWriteTruncate); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Write([]byte("new")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Buffered until flushed.
	if data, _ := afero.ReadFile(fs, "/out.txt"); len(data) != 0 {
		t.Errorf("content before Flush = %q, want empty", data)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, _ := afero.ReadFile(fs, "/out.txt")
	if !bytes.Equal(data, []byte("new")) {
		t.Errorf("content = %q, want %q", data, "new")
	}
}

func TestModeString(t *testing.T) {
	if filestore.ModeRead.String() != "rb" || filestore.ModeWriteTruncate.String() != "wb+" {
		t.Errorf("modes = %s, %s", filestore.ModeRead, filestore.ModeWriteTruncate)
	}
}
