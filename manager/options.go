package manager

import (
	"log/slog"

	"github.com/spf13/afero"
)

// Option customizes a Manager.
type Option func(*Manager)

// WithLocalFs sets the filesystem used for local paths and temporary files.
// The default is the OS filesystem.
func WithLocalFs(fs afero.Fs) Option {
	return func(m *Manager) { m.local = fs }
}

// WithTempDirProvider replaces the temporary directory lookup.
func WithTempDirProvider(p TempDirProvider) Option {
	return func(m *Manager) { m.tempDirs = p }
}

// WithLogger sets the debug logger. By default nothing is logged.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithNameGenerator replaces the token source behind GenerateFileName.
func WithNameGenerator(gen func() string) Option {
	return func(m *Manager) { m.newToken = gen }
}
