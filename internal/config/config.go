// Package config loads the tenantry configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tenantry/internal/model"
)

// Config represents the tenantry configuration
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	History HistoryConfig `yaml:"history"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig represents the SQLite store configuration
type StoreConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig represents history mirror configuration
type HistoryConfig struct {
	Level model.HistoryLevel `yaml:"level"`
}

// JobsConfig represents job executor configuration
type JobsConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns default configuration values
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path: "tenantry.db",
		},
		History: HistoryConfig{
			Level: model.HistoryAudit,
		},
		Jobs: JobsConfig{
			Workers:      4,
			PollInterval: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults and validates the
// result. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}
	if !model.ValidHistoryLevels[c.History.Level] {
		return fmt.Errorf("history.level must be one of: none, activity, audit (got %q)", c.History.Level)
	}
	if c.Jobs.Workers <= 0 {
		return errors.New("jobs.workers must be positive")
	}
	if c.Jobs.PollInterval <= 0 {
		return errors.New("jobs.poll_interval must be positive")
	}
	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			return errors.New("metrics.addr is required when metrics are enabled")
		}
		if c.Metrics.Path == "" || c.Metrics.Path[0] != '/' {
			return errors.New("metrics.path must start with /")
		}
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return errors.New("logging.format must be one of: json, console")
	}
	return nil
}

// NewLogger builds a zap logger from the logging section. JSON output uses
// the production encoder, console output the development encoder.
func (c LoggingConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}

	var zc zap.Config
	if c.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
