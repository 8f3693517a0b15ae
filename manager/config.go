package manager

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// DefaultBatchSize is the number of bytes read from a source per call during
// stream copies.
const DefaultBatchSize = 100_000

// Config is set once when the manager is built.
type Config struct {
	// Name is the logical backend name used in native paths.
	Name string `json:"name" yaml:"name" env:"FILESTORE_NAME" envDefault:"default"`

	// Protocol, when set, enables FilePath ("protocol://name/file").
	Protocol string `json:"protocol" yaml:"protocol" env:"FILESTORE_PROTOCOL"`

	// UploadTempDir is preferred over the system temp dir when it exists and
	// is writable.
	UploadTempDir string `json:"uploadTempDir" yaml:"uploadTempDir" env:"FILESTORE_UPLOAD_TMP_DIR"`

	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int `json:"batchSize" yaml:"batchSize" env:"FILESTORE_BATCH_SIZE" envDefault:"100000"`
}

// LoadConfig reads a Config from the environment.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("manager: parse config: %w", err)
	}
	return cfg, nil
}

func (c Config) batchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return DefaultBatchSize
}
