package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds server and pipeline settings. Values come from a YAML file
// when one exists, with SPLITSHOT_* environment variables taking precedence.
type Config struct {
	Port               string `yaml:"port"`
	DefaultSliceHeight int    `yaml:"default_slice_height"`
	MinSliceHeight     int    `yaml:"min_slice_height"`
	MaxSliceHeight     int    `yaml:"max_slice_height"`
	MaxUploadBytes     int64  `yaml:"max_upload_bytes"`
}

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = "splitshot.yml"

func Default() *Config {
	return &Config{
		Port:               "8888",
		DefaultSliceHeight: 1200,
		MinSliceHeight:     100,
		MaxSliceHeight:     5000,
		MaxUploadBytes:     50 * 1024 * 1024,
	}
}

// Load reads the config file at path, falling back to defaults when the
// default path does not exist. An explicit path that cannot be read is an
// error; a missing default file is not.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != "" && path != DefaultPath
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SPLITSHOT_PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("SPLITSHOT_SLICE_HEIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultSliceHeight = n
		}
	}
	if v := os.Getenv("SPLITSHOT_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxUploadBytes = n
		}
	}
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port must not be empty")
	}
	if c.MinSliceHeight <= 0 {
		return fmt.Errorf("min_slice_height must be positive, got %d", c.MinSliceHeight)
	}
	if c.MaxSliceHeight < c.MinSliceHeight {
		return fmt.Errorf("max_slice_height %d is below min_slice_height %d", c.MaxSliceHeight, c.MinSliceHeight)
	}
	if c.DefaultSliceHeight < c.MinSliceHeight || c.DefaultSliceHeight > c.MaxSliceHeight {
		return fmt.Errorf("default_slice_height %d outside [%d, %d]", c.DefaultSliceHeight, c.MinSliceHeight, c.MaxSliceHeight)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}
