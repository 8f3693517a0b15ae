// Package storagetest holds conformance suites for storage drivers. Driver
// packages run them from their own tests:
//
//	func TestEngine(t *testing.T) {
//	    storagetest.EngineSuite(t, local.NewWithFs(afero.NewMemMapFs()))
//	}
package storagetest

import (
	"context"
	"errors"
	"io"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/nuln/filestore"
)

func put(t *testing.T, engine filestore.StorageEngine, path, content string) {
	t.Helper()
	w, err := engine.Create(context.Background(), path)
	if err != nil {
		t.Fatalf("Create %s: %v", path, err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		t.Fatalf("Write %s: %v", path, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close %s: %v", path, err)
	}
}

func read(t *testing.T, engine filestore.StorageEngine, path string) string {
	t.Helper()
	r, err := engine.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open %s: %v", path, err)
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll %s: %v", path, err)
	}
	return string(data)
}

// EngineSuite checks the StorageEngine contract and any optional extension
// the engine implements.
func EngineSuite(t *testing.T, engine filestore.StorageEngine) { //nolint:gocyclo
	t.Helper()
	ctx := context.Background()

	t.Run("CreateOpenStatRemove", func(t *testing.T) {
		const path, content = "suite/hello.txt", "hello world"
		put(t, engine, path, content)

		info, err := engine.Stat(ctx, path)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if info.Name != "hello.txt" || info.Size != int64(len(content)) || info.IsDir {
			t.Errorf("Stat = {Name:%q Size:%d IsDir:%v}, want {hello.txt %d false}", info.Name, info.Size, info.IsDir, len(content))
		}

		if got := read(t, engine, path); got != content {
			t.Errorf("content = %q, want %q", got, content)
		}

		r, err := engine.Open(ctx, path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if _, err := r.Seek(6, io.SeekStart); err != nil {
			t.Fatalf("Seek: %v", err)
		}
		tail, _ := io.ReadAll(r)
		_ = r.Close()
		if string(tail) != "world" {
			t.Errorf("after Seek = %q, want %q", tail, "world")
		}

		if err := engine.Remove(ctx, path); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		if _, err := engine.Stat(ctx, path); !errors.Is(err, filestore.ErrNotFound) {
			t.Errorf("Stat after Remove: err = %v, want ErrNotFound", err)
		}
		_ = engine.Remove(ctx, "suite")
	})

	t.Run("Overwrite", func(t *testing.T) {
		const path = "overwrite.txt"
		put(t, engine, path, "a much longer first version")
		put(t, engine, path, "short")
		if got := read(t, engine, path); got != "short" {
			t.Errorf("content = %q, want %q", got, "short")
		}
		_ = engine.Remove(ctx, path)
	})

	t.Run("EmptyFile", func(t *testing.T) {
		const path = "empty.bin"
		put(t, engine, path, "")
		info, err := engine.Stat(ctx, path)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if info.Size != 0 {
			t.Errorf("Size = %d, want 0", info.Size)
		}
		_ = engine.Remove(ctx, path)
	})

	t.Run("MkdirAllReadDir", func(t *testing.T) {
		const dir = "suite/dirops"
		if err := engine.MkdirAll(ctx, dir); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		for _, name := range []string{"a.txt", "b.txt"} {
			put(t, engine, dir+"/"+name, name)
		}
		entries, err := engine.ReadDir(ctx, dir)
		if err != nil {
			t.Fatalf("ReadDir: %v", err)
		}
		var names []string
		for _, e := range entries {
			names = append(names, e.Name)
		}
		slices.Sort(names)
		if !slices.Equal(names, []string{"a.txt", "b.txt"}) {
			t.Errorf("ReadDir names = %v, want [a.txt b.txt]", names)
		}
		_ = engine.Remove(ctx, "suite")
	})

	t.Run("Rename", func(t *testing.T) {
		put(t, engine, "rename_src.txt", "data")
		if err := engine.Rename(ctx, "rename_src.txt", "moved/rename_dst.txt"); err != nil {
			t.Fatalf("Rename: %v", err)
		}
		if _, err := engine.Stat(ctx, "rename_src.txt"); err == nil {
			t.Error("source still exists after Rename")
		}
		if got := read(t, engine, "moved/rename_dst.txt"); got != "data" {
			t.Errorf("renamed content = %q, want %q", got, "data")
		}
		_ = engine.Remove(ctx, "moved")
	})

	t.Run("OpenFileAppend", func(t *testing.T) {
		const path = "append.txt"
		put(t, engine, path, "hello")
		w, err := engine.OpenFile(ctx, path, os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			t.Fatalf("OpenFile: %v", err)
		}
		_, _ = io.WriteString(w, " world")
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if got := read(t, engine, path); got != "hello world" {
			t.Errorf("after append = %q, want %q", got, "hello world")
		}
		_ = engine.Remove(ctx, path)
	})

	t.Run("Walk", func(t *testing.T) {
		_ = engine.MkdirAll(ctx, "walk/sub")
		put(t, engine, "walk/f1.txt", "1")
		put(t, engine, "walk/sub/f2.txt", "2")

		var files []string
		err := filestore.Walk(ctx, engine, "walk", func(path string, info *filestore.EntryInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir {
				files = append(files, info.Name)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Walk: %v", err)
		}
		slices.Sort(files)
		if !slices.Equal(files, []string{"f1.txt", "f2.txt"}) {
			t.Errorf("Walk files = %v, want [f1.txt f2.txt]", files)
		}
		_ = engine.Remove(ctx, "walk")
	})

	if copier, ok := engine.(filestore.Copier); ok {
		t.Run("Copier", func(t *testing.T) {
			put(t, engine, "copy_src.txt", "copy me")
			if err := copier.Copy(ctx, "copy_src.txt", "copy_dst.txt"); err != nil {
				if errors.Is(err, filestore.ErrNotSupported) {
					t.Skip("Copy not supported by this backend")
				}
				t.Fatalf("Copy: %v", err)
			}
			if got := read(t, engine, "copy_dst.txt"); got != "copy me" {
				t.Errorf("copied content = %q, want %q", got, "copy me")
			}
			_ = engine.Remove(ctx, "copy_src.txt")
			_ = engine.Remove(ctx, "copy_dst.txt")
		})
	}

	if hasher, ok := engine.(filestore.Hasher); ok {
		t.Run("Hasher", func(t *testing.T) {
			put(t, engine, "hash.txt", "hash me")
			sum, err := hasher.Hash(ctx, "hash.txt", "sha256")
			if errors.Is(err, filestore.ErrNotSupported) {
				t.Skip("sha256 not supported by this backend")
			}
			if err != nil {
				t.Fatalf("Hash: %v", err)
			}
			// sha256("hash me")
			const want = "eb201af5aaf0d60629d3d2a61e466cfc0fedb517add831ecac5235e1daa963d6"
			if sum != want {
				t.Errorf("Hash = %q, want %q", sum, want)
			}
			_ = engine.Remove(ctx, "hash.txt")
		})
	}

	if sr, ok := engine.(filestore.StreamReader); ok {
		t.Run("StreamReader", func(t *testing.T) {
			put(t, engine, "stream.txt", "stream data")
			rc, err := sr.Get(ctx, "stream.txt")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			data, _ := io.ReadAll(rc)
			_ = rc.Close()
			if string(data) != "stream data" {
				t.Errorf("Get content = %q, want %q", data, "stream data")
			}
			_ = engine.Remove(ctx, "stream.txt")
		})
	}

	if sw, ok := engine.(filestore.StreamWriter); ok {
		t.Run("StreamWriter", func(t *testing.T) {
			if err := sw.Put(ctx, "put/stream.txt", strings.NewReader("put data")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if got := read(t, engine, "put/stream.txt"); got != "put data" {
				t.Errorf("Put content = %q, want %q", got, "put data")
			}
			_ = engine.Remove(ctx, "put")
		})
	}
}
