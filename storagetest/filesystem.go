package storagetest

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/nuln/filestore"
)

func writeKey(t *testing.T, fs *filestore.Filesystem, key string, content []byte) {
	t.Helper()
	s, err := fs.CreateStream(context.Background(), key)
	if err != nil {
		t.Fatalf("CreateStream %s: %v", key, err)
	}
	if err := s.Open(filestore.ModeWriteTruncate); err != nil {
		t.Fatalf("Open %s: %v", key, err)
	}
	if _, err := s.Write(content); err != nil {
		t.Fatalf("Write %s: %v", key, err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush %s: %v", key, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close %s: %v", key, err)
	}
}

// FilesystemSuite checks the key-oriented operations of a Filesystem. The
// filesystem must start empty.
func FilesystemSuite(t *testing.T, fs *filestore.Filesystem) {
	t.Helper()
	ctx := context.Background()

	t.Run("HasGetDelete", func(t *testing.T) {
		writeKey(t, fs, "fs/one.txt", []byte("one"))

		ok, err := fs.Has(ctx, "fs/one.txt")
		if err != nil || !ok {
			t.Fatalf("Has = %v, %v; want true, nil", ok, err)
		}
		if ok, _ := fs.Has(ctx, "fs"); ok {
			t.Error("Has reported a directory as a file")
		}

		f, err := fs.Get(ctx, "fs/one.txt")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		data, err := f.Content(ctx)
		if err != nil || string(data) != "one" {
			t.Errorf("Content = %q, %v; want %q", data, err, "one")
		}

		if err := fs.Delete(ctx, "fs/one.txt"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := fs.Get(ctx, "fs/one.txt"); !errors.Is(err, filestore.ErrNotFound) {
			t.Errorf("Get after Delete: err = %v, want ErrNotFound", err)
		}
		if err := fs.Delete(ctx, "fs/one.txt"); !errors.Is(err, filestore.ErrNotFound) {
			t.Errorf("second Delete: err = %v, want ErrNotFound", err)
		}
		_ = fs.Engine().Remove(ctx, "fs")
	})

	t.Run("EmptyKey", func(t *testing.T) {
		if _, err := fs.Has(ctx, ""); !errors.Is(err, filestore.ErrInvalid) {
			t.Errorf("Has(\"\"): err = %v, want ErrInvalid", err)
		}
		if _, err := fs.CreateStream(ctx, ""); !errors.Is(err, filestore.ErrInvalid) {
			t.Errorf("CreateStream(\"\"): err = %v, want ErrInvalid", err)
		}
	})

	t.Run("Register", func(t *testing.T) {
		writeKey(t, fs, "reg.txt", []byte("v1"))
		first, err := fs.Get(ctx, "reg.txt")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if _, err := first.Content(ctx); err != nil {
			t.Fatalf("Content: %v", err)
		}

		writeKey(t, fs, "reg.txt", []byte("v2"))
		again, _ := fs.Get(ctx, "reg.txt")
		if again != first {
			t.Error("Get returned a new handle while the old one is registered")
		}

		fs.RemoveFromRegister("reg.txt")
		fresh, err := fs.Get(ctx, "reg.txt")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		data, _ := fresh.Content(ctx)
		if !bytes.Equal(data, []byte("v2")) {
			t.Errorf("Content after RemoveFromRegister = %q, want %q", data, "v2")
		}
		_ = fs.Delete(ctx, "reg.txt")
	})

	t.Run("ListKeys", func(t *testing.T) {
		for _, key := range []string{"list/a.txt", "list/b/c.txt", "list/b/d.txt", "other.txt"} {
			writeKey(t, fs, key, []byte(key))
		}

		all, err := fs.ListKeys(ctx, "")
		if err != nil {
			t.Fatalf("ListKeys: %v", err)
		}
		want := []string{"list/a.txt", "list/b/c.txt", "list/b/d.txt", "other.txt"}
		if !slices.Equal(all.Keys, want) {
			t.Errorf("ListKeys(\"\") = %v, want %v", all.Keys, want)
		}
		if !slices.Equal(all.Dirs, []string{"list", "list/b"}) {
			t.Errorf("Dirs = %v, want [list list/b]", all.Dirs)
		}

		sub, err := fs.ListKeys(ctx, "list/b/")
		if err != nil {
			t.Fatalf("ListKeys: %v", err)
		}
		if !slices.Equal(sub.Keys, []string{"list/b/c.txt", "list/b/d.txt"}) {
			t.Errorf("ListKeys(\"list/b/\") = %v", sub.Keys)
		}

		none, err := fs.ListKeys(ctx, "missing/dir/")
		if err != nil {
			t.Fatalf("ListKeys on missing prefix: %v", err)
		}
		if len(none.Keys) != 0 {
			t.Errorf("ListKeys(\"missing/dir/\") = %v, want none", none.Keys)
		}

		_ = fs.Engine().Remove(ctx, "list")
		_ = fs.Delete(ctx, "other.txt")
	})

	t.Run("StreamReadBatches", func(t *testing.T) {
		content := bytes.Repeat([]byte("0123456789"), 25)
		writeKey(t, fs, "batches.bin", content)

		s, _ := fs.CreateStream(ctx, "batches.bin")
		if err := s.Open(filestore.ModeRead); err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer func() { _ = s.Close() }()

		var got []byte
		reads := 0
		for !s.EOF() {
			chunk, err := s.Read(100)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			got = append(got, chunk...)
			reads++
		}
		if !bytes.Equal(got, content) {
			t.Errorf("read %d bytes, want %d", len(got), len(content))
		}
		if reads != 3 {
			t.Errorf("reads = %d, want 3", reads)
		}
		_ = fs.Delete(ctx, "batches.bin")
	})
}
