package filestore

import (
	"fmt"
	"slices"
	"strconv"
	"sync"
)

// Config selects and configures a storage driver.
type Config struct {
	// Driver is the registered driver name: "local", "sharded", "rclone", "s3".
	Driver string `json:"driver" yaml:"driver" env:"FILESTORE_DRIVER" envDefault:"local"`

	// BasePath is the root directory (or remote) for the driver.
	BasePath string `json:"basePath,omitempty" yaml:"basePath,omitempty" env:"FILESTORE_BASE_PATH"`

	// Options holds driver-specific settings.
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// String returns the option named key as a string, or def when absent.
func (c *Config) String(key, def string) string {
	if v, ok := c.Options[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

// Int64 returns the option named key as an int64. Numbers decoded from JSON
// or YAML and numeric strings are accepted.
func (c *Config) Int64(key string, def int64) int64 {
	switch n := c.Options[key].(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		if v, err := strconv.ParseInt(n, 10, 64); err == nil {
			return v
		}
	}
	return def
}

// Bool returns the option named key as a bool.
func (c *Config) Bool(key string, def bool) bool {
	switch b := c.Options[key].(type) {
	case bool:
		return b
	case string:
		if v, err := strconv.ParseBool(b); err == nil {
			return v
		}
	}
	return def
}

// Factory builds a [StorageEngine] from a [Config].
type Factory func(cfg *Config) (StorageEngine, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a driver available under name. Drivers call it from init.
// Registering the same name twice panics.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic(fmt.Sprintf("filestore: nil factory for driver %q", name))
	}
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("filestore: driver %q already registered", name))
	}
	factories[name] = factory
}

// Drivers returns the sorted names of all registered drivers.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// OpenEngine creates the [StorageEngine] for cfg.Driver.
func OpenEngine(cfg *Config) (StorageEngine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("filestore: config must not be nil")
	}

	registryMu.RLock()
	factory, ok := factories[cfg.Driver]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("filestore: unknown driver %q (forgotten import?)", cfg.Driver)
	}
	return factory(cfg)
}

// Open creates the engine for cfg and wraps it in a [Filesystem] named name.
func Open(name string, cfg *Config) (*Filesystem, error) {
	engine, err := OpenEngine(cfg)
	if err != nil {
		return nil, err
	}
	return NewFilesystem(name, engine), nil
}

// MustOpen is like [Open] but panics on error.
func MustOpen(name string, cfg *Config) *Filesystem {
	fs, err := Open(name, cfg)
	if err != nil {
		panic(err)
	}
	return fs
}
