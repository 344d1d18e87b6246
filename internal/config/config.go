package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration, loaded from a YAML file with
// defaults applied for anything left unset.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Worker  WorkerConfig  `yaml:"worker"`
	Data    DataConfig    `yaml:"data"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

// WorkerConfig describes the supervised watch process.
type WorkerConfig struct {
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args,omitempty"`
	Directory   string            `yaml:"directory,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	GracePeriod int               `yaml:"grace_period,omitempty"` // seconds before SIGKILL
}

// DataConfig locates the change file the worker rewrites.
type DataConfig struct {
	File            string `yaml:"file"`
	DebounceMs      int    `yaml:"debounce_ms,omitempty"`
	RefreshInterval int    `yaml:"refresh_interval,omitempty"` // dashboard poll seconds
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML configuration at path. The SERVER_ADDRESS
// environment variable overrides the configured listen address.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if c.Server.Address == "" {
		c.Server.Address = ":61115"
	}
	if c.Worker.Command == "" {
		c.Worker.Command = "./fluctuation-watch"
	}
	if c.Worker.GracePeriod == 0 {
		c.Worker.GracePeriod = 5
	}
	if c.Data.File == "" {
		c.Data.File = "static/changes.csv"
	}
	if c.Data.DebounceMs == 0 {
		c.Data.DebounceMs = 500
	}
	if c.Data.RefreshInterval == 0 {
		c.Data.RefreshInterval = 2
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// GracePeriodDuration returns the worker grace period as a duration.
func (c *Config) GracePeriodDuration() time.Duration {
	return time.Duration(c.Worker.GracePeriod) * time.Second
}

// Debounce returns the data file watch debounce as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Data.DebounceMs) * time.Millisecond
}
