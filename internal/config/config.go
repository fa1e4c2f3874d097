// Package config loads the service configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Objects ObjectsConfig `yaml:"objects"`
	Upload  UploadConfig  `yaml:"upload"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig configures the HTTP listener and the GraphQL handler.
type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	Path         string        `yaml:"path"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Pretty       bool          `yaml:"pretty"`
	CORS         CORSConfig    `yaml:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig configures the document store and the search index.
type StorageConfig struct {
	Driver     string `yaml:"driver"` // "bolt" or "memory"
	Path       string `yaml:"path"`
	Prefix     string `yaml:"prefix"`
	SearchPath string `yaml:"search_path"`
}

// ObjectsConfig configures the object store for uploads.
type ObjectsConfig struct {
	Driver  string `yaml:"driver"` // "nats" or "memory"
	NATSURL string `yaml:"nats_url"`
	Bucket  string `yaml:"bucket"`
}

type UploadConfig struct {
	Secret        string        `yaml:"secret"`
	Expiry        time.Duration `yaml:"expiry"`
	SizeTolerance int64         `yaml:"size_tolerance"`
	PublicURL     string        `yaml:"public_url"`
}

type AuthConfig struct {
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
	CacheSize     int    `yaml:"cache_size"`
	Header        string `yaml:"header"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "console" or "json"
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig enables OTLP export when Endpoint is set.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

// Load reads path, applies GRAPHCMS_* overrides and defaults, and validates
// the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		data = []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or variable sets a
// value.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAPHCMS_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("GRAPHCMS_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("GRAPHCMS_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("GRAPHCMS_OBJECTS_DRIVER"); v != "" {
		cfg.Objects.Driver = v
	}
	if v := os.Getenv("GRAPHCMS_NATS_URL"); v != "" {
		cfg.Objects.NATSURL = v
	}
	if v := os.Getenv("GRAPHCMS_UPLOAD_SECRET"); v != "" {
		cfg.Upload.Secret = v
	}
	if v := os.Getenv("GRAPHCMS_ADMIN_PASSWORD"); v != "" {
		cfg.Auth.AdminPassword = v
	}
	if v := os.Getenv("GRAPHCMS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GRAPHCMS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("GRAPHCMS_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("GRAPHCMS_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":4000"
	}
	if cfg.Server.Path == "" {
		cfg.Server.Path = "/graphql"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "bolt"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "cms"
	}
	if cfg.Storage.SearchPath == "" {
		cfg.Storage.SearchPath = filepath.Join(cfg.Storage.Path, "search.db")
	}

	if cfg.Objects.Driver == "" {
		cfg.Objects.Driver = "nats"
	}
	if cfg.Objects.NATSURL == "" {
		cfg.Objects.NATSURL = "nats://127.0.0.1:4222"
	}
	if cfg.Objects.Bucket == "" {
		cfg.Objects.Bucket = "cms-files"
	}

	if cfg.Upload.Expiry == 0 {
		cfg.Upload.Expiry = 30 * time.Minute
	}
	if cfg.Upload.SizeTolerance == 0 {
		cfg.Upload.SizeTolerance = 50
	}

	if cfg.Auth.AdminUsername == "" {
		cfg.Auth.AdminUsername = "admin"
	}
	if cfg.Auth.CacheSize == 0 {
		cfg.Auth.CacheSize = 1024
	}
	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "Authorization"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Tracing.Service == "" {
		cfg.Tracing.Service = "graphcms"
	}
}

func validate(cfg *Config) error {
	validStorage := map[string]bool{"bolt": true, "memory": true}
	if !validStorage[cfg.Storage.Driver] {
		return fmt.Errorf("storage.driver must be 'bolt' or 'memory', got %q", cfg.Storage.Driver)
	}
	validObjects := map[string]bool{"nats": true, "memory": true}
	if !validObjects[cfg.Objects.Driver] {
		return fmt.Errorf("objects.driver must be 'nats' or 'memory', got %q", cfg.Objects.Driver)
	}
	if cfg.Objects.Driver != "memory" && cfg.Upload.Secret == "" {
		return fmt.Errorf("upload.secret is required when objects.driver is %q", cfg.Objects.Driver)
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'console' or 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Server.Path[0] != '/' {
		return fmt.Errorf("server.path must start with '/', got %q", cfg.Server.Path)
	}
	if cfg.Auth.CacheSize < 0 {
		return fmt.Errorf("auth.cache_size must not be negative")
	}
	return nil
}
