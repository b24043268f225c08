// Package config loads skipper settings from YAML
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
)

// DefaultPath is where Load looks when no path is given
const DefaultPath = "~/.config/skipper/config.yaml"

// Registry configures the background program registration
type Registry struct {
	URL      string `yaml:"url"`
	Attempts int    `yaml:"attempts"`
	Interval string `yaml:"interval"`
}

// Host configures the simulated host transport
type Host struct {
	SampleRate float64 `yaml:"sampleRate"`
	BlockSize  int     `yaml:"blockSize"`
	Tempo      float64 `yaml:"tempo"`
	Channel    uint8   `yaml:"channel"`
	Port       string  `yaml:"port"`
	Track      string  `yaml:"track"`
}

// Server configures the registry server
type Server struct {
	Port       int    `yaml:"port"`
	StagingDir string `yaml:"stagingDir"`
}

// Log configures logging
type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is the full configuration file
type Config struct {
	Registry Registry `yaml:"registry"`
	Host     Host     `yaml:"host"`
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Registry: Registry{
			URL:      "http://localhost:61170/api",
			Attempts: 50,
			Interval: "100ms",
		},
		Host: Host{
			SampleRate: 44100,
			BlockSize:  512,
			Tempo:      120,
		},
		Server: Server{
			Port:       61170,
			StagingDir: "/tmp/skipper",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads the configuration at path over the defaults. An empty path
// means DefaultPath; a missing file is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(expanded)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	if _, err := c.Registry.IntervalDuration(); err != nil {
		return err
	}
	if c.Registry.Attempts < 1 {
		return fmt.Errorf("registry attempts must be at least 1, got %d", c.Registry.Attempts)
	}
	if c.Host.Channel > 15 {
		return fmt.Errorf("host channel must be 0-15, got %d", c.Host.Channel)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// IntervalDuration parses the retry interval
func (r Registry) IntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(r.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid registry interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("registry interval must be positive, got %s", r.Interval)
	}
	return d, nil
}

// StagingPath expands the staging directory
func (s Server) StagingPath() (string, error) {
	return homedir.Expand(s.StagingDir)
}

// Save writes the configuration to path, creating parent directories
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand config path: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(expanded, data, 0644)
}
