package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/filestore"
)

func TestUploadTempDir(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/var/uploads", 0o755))

	tests := []struct {
		name string
		fs   afero.Fs
		dir  string
		want string
	}{
		{"configured and writable", fs, "/var/uploads", "/var/uploads"},
		{"not configured", fs, "", os.TempDir()},
		{"missing", fs, "/var/missing", os.TempDir()},
		{"read-only", afero.NewReadOnlyFs(fs), "/var/uploads", os.TempDir()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, uploadTempDir{fs: tt.fs, preferred: tt.dir}.TempDir())
		})
	}

	entries, err := afero.ReadDir(fs, "/var/uploads")
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file must be removed")
}

func TestWithTrailingSeparator(t *testing.T) {
	t.Parallel()
	sep := string(filepath.Separator)
	assert.Equal(t, "/tmp"+sep, withTrailingSeparator("/tmp"))
	assert.Equal(t, "/tmp"+sep, withTrailingSeparator("/tmp"+sep))
}

func TestDefaultTempDirUsesConfig(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data/tmp", 0o755))

	m, err := New(nopBackend{}, Config{Name: "b", UploadTempDir: "/data/tmp"}, WithLocalFs(fs))
	require.NoError(t, err)

	name, err := m.TemporaryFileName("a.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/tmp", "a.txt"), name)
	assert.Equal(t, DefaultBatchSize, m.batchSize)
}

type nopBackend struct{}

func (nopBackend) Has(context.Context, string) (bool, error) { return false, nil }
func (nopBackend) Get(context.Context, string) (*filestore.File, error) {
	return nil, filestore.ErrNotFound
}
func (nopBackend) CreateStream(context.Context, string) (filestore.Stream, error) {
	return nil, filestore.ErrNotSupported
}
func (nopBackend) Delete(context.Context, string) error { return nil }
func (nopBackend) ListKeys(context.Context, string) (filestore.Keys, error) {
	return filestore.Keys{}, nil
}
func (nopBackend) RemoveFromRegister(string) {}
