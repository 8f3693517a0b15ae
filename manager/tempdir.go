package manager

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// TempDirProvider resolves the directory temporary files are written to.
type TempDirProvider interface {
	TempDir() string
}

// TempDirFunc adapts a function to TempDirProvider.
type TempDirFunc func() string

func (f TempDirFunc) TempDir() string { return f() }

// uploadTempDir prefers a configured directory and falls back to the system
// temp dir when it is missing or read-only.
type uploadTempDir struct {
	fs        afero.Fs
	preferred string
}

func (u uploadTempDir) TempDir() string {
	if u.preferred != "" && writableDir(u.fs, u.preferred) {
		return u.preferred
	}
	return os.TempDir()
}

func writableDir(fs afero.Fs, dir string) bool {
	if ok, err := afero.DirExists(fs, dir); err != nil || !ok {
		return false
	}
	probe, err := afero.TempFile(fs, dir, ".probe-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	_ = probe.Close()
	_ = fs.Remove(name)
	return true
}

func withTrailingSeparator(dir string) string {
	if strings.HasSuffix(dir, string(filepath.Separator)) {
		return dir
	}
	return dir + string(filepath.Separator)
}
