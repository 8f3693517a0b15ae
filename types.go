package filestore

import (
	"io"
	"io/fs"
	"os"
	"time"
)

// EntryInfo describes a file or directory in a storage engine.
type EntryInfo struct {
	Name     string            `json:"name"`
	Path     string            `json:"path"`
	Size     int64             `json:"size"`
	ModTime  time.Time         `json:"modTime"`
	Mode     os.FileMode       `json:"mode"`
	IsDir    bool              `json:"isDir"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FileInfo adapts e to fs.FileInfo.
func (e *EntryInfo) FileInfo() fs.FileInfo {
	return entryFileInfo{e}
}

type entryFileInfo struct{ e *EntryInfo }

func (w entryFileInfo) Name() string       { return w.e.Name }
func (w entryFileInfo) Size() int64        { return w.e.Size }
func (w entryFileInfo) ModTime() time.Time { return w.e.ModTime }
func (w entryFileInfo) IsDir() bool        { return w.e.IsDir }
func (w entryFileInfo) Sys() any           { return nil }

func (w entryFileInfo) Mode() fs.FileMode {
	if w.e.IsDir {
		return w.e.Mode | fs.ModeDir
	}
	return w.e.Mode
}

// Keys is a listing result: file keys plus the directories seen on the way.
type Keys struct {
	Keys []string `json:"keys"`
	Dirs []string `json:"dirs,omitempty"`
}

// ReadSeekCloser groups Read, Seek and Close.
type ReadSeekCloser = io.ReadSeekCloser

// WriteCloser groups Write and Close.
type WriteCloser = io.WriteCloser

// WriteSeekCloser groups Write, Seek and Close.
type WriteSeekCloser interface {
	io.Writer
	io.Seeker
	io.Closer
}

// Manifest is the metadata of a file stored as content-addressed chunks.
type Manifest struct {
	Chunks     []string  `json:"chunks"`
	ChunkSizes []int64   `json:"chunkSizes,omitempty"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"modTime"`
}

// ChunkAt locates byte offset off: it returns the chunk index, the offset
// inside that chunk and the chunk length. fixed is the chunk size used when
// ChunkSizes is empty. ok is false when off is outside the file.
func (m *Manifest) ChunkAt(off, fixed int64) (idx int, inChunk, length int64, ok bool) {
	if off < 0 || off >= m.Size {
		return 0, 0, 0, false
	}
	if len(m.ChunkSizes) == 0 {
		idx = int(off / fixed)
		if idx >= len(m.Chunks) {
			return 0, 0, 0, false
		}
		length = fixed
		if last := m.Size - int64(idx)*fixed; last < fixed {
			length = last
		}
		return idx, off % fixed, length, true
	}
	var start int64
	for i, sz := range m.ChunkSizes {
		if off < start+sz {
			return i, off - start, sz, i < len(m.Chunks)
		}
		start += sz
	}
	return 0, 0, 0, false
}
