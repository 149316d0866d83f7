package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.wacrm/config.toml.
type Config struct {
	DefaultWorkspace string `toml:"default_workspace"`
	HTTPAddr         string `toml:"http_addr"`
	JWTSecret        string `toml:"jwt_secret"`

	Media MediaConfig `toml:"media"`
}

// MediaConfig configures the S3-compatible media store.
type MediaConfig struct {
	Region   string `toml:"region"`
	Bucket   string `toml:"bucket"`
	Endpoint string `toml:"endpoint"`
	// PublicRead controls whether uploads get a stable public URL or a
	// presigned one.
	PublicRead bool `toml:"public_read"`
}

// Default returns the built-in config used when no file exists.
func Default() *Config {
	return &Config{
		HTTPAddr: "127.0.0.1:8780",
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
