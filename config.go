package jbpfio

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ehrlich-b/jbpfio/internal/constants"
)

// Config holds the process-wide knobs an io_ctx is built from: where run
// directories and sidecar files live, and the sizing limits the internal
// packages are built around. Adapted from the teacher's approach of
// surfacing tunables as a flat YAML-loadable struct.
type Config struct {
	RunPath   string `yaml:"run_path"`
	Namespace string `yaml:"namespace"`

	VsockDefaultPort int `yaml:"vsock_default_port"`
	MaxThreads       int `yaml:"max_threads"`
	MaxChannels      int `yaml:"max_channels"`
	BatchSize        int `yaml:"batch_size"`
	MaxTryAttempts   int `yaml:"max_try_attempts"`
}

// DefaultConfig returns a Config populated from internal/constants'
// compile-time defaults.
func DefaultConfig() *Config {
	return &Config{
		RunPath:          constants.DefaultRunPath,
		Namespace:        constants.DefaultNamespace,
		VsockDefaultPort: constants.VsockDefaultPort,
		MaxThreads:       constants.MaxThreads,
		MaxChannels:      constants.MaxChannels,
		BatchSize:        constants.BatchSize,
		MaxTryAttempts:   constants.MaxTryAttempts,
	}
}

// LoadConfig reads a YAML config file from path, unmarshaling it over
// DefaultConfig: fields the file omits keep their defaults, while a field
// the file sets explicitly (even to zero) takes the file's value.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jbpfio: reading config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("jbpfio: parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// MetaDir returns the sidecar metadata directory for this config:
// <RunPath>/<Namespace>.
func (c *Config) MetaDir() string {
	return c.RunPath + "/" + c.Namespace
}
