package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/scanfold/internal/errors"
	"github.com/anstrom/scanfold/internal/logging"
)

// Store backends.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config represents the complete scanfold configuration
type Config struct {
	// Persistence of the inventory and source-file records
	Store StoreConfig `yaml:"store" json:"store"`

	// Report ingestion settings
	Import ImportConfig `yaml:"import" json:"import"`

	// Port-list export settings
	Export ExportConfig `yaml:"export" json:"export"`

	// Directory watch settings
	Watch WatchConfig `yaml:"watch" json:"watch"`

	// Logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// StoreConfig selects and configures the persistence backend
type StoreConfig struct {
	// Backend name (file, memory, postgres, redis)
	Backend string `yaml:"backend" json:"backend" validate:"required,oneof=file memory postgres redis"`

	// Directory for the file backend
	Path string `yaml:"path" json:"path"`

	// Maximum size of a single record in bytes, 0 for unlimited
	MaxBytes int64 `yaml:"max_bytes" json:"max_bytes" validate:"gte=0"`

	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
}

// PostgresConfig holds connection settings for the postgres backend
type PostgresConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port" validate:"gte=0,lte=65535"`
	Database string `yaml:"database" json:"database"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	// Table holding the key/value documents
	Table string `yaml:"table" json:"table"`
}

// RedisConfig holds connection settings for the redis backend
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"-"`
	DB        int    `yaml:"db" json:"db" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// ImportConfig holds ingestion settings
type ImportConfig struct {
	// Format used when none is given (auto, grepable, xml)
	DefaultFormat string `yaml:"default_format" json:"default_format" validate:"omitempty,oneof=auto grepable xml"`

	// Largest report accepted, in bytes
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size" validate:"gt=0"`

	// Number of reports parsed concurrently
	Parallelism int `yaml:"parallelism" json:"parallelism" validate:"gte=1,lte=64"`
}

// ExportConfig holds export settings
type ExportConfig struct {
	// Default archive file name
	ArchiveName string `yaml:"archive_name" json:"archive_name" validate:"required"`
}

// WatchConfig holds directory watch settings
type WatchConfig struct {
	// Directory polled for new reports
	Directory string `yaml:"directory" json:"directory"`

	// Standard cron expression for the poll
	Schedule string `yaml:"schedule" json:"schedule"`

	// Glob patterns of files to pick up
	Patterns []string `yaml:"patterns" json:"patterns"`
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	// Enable metrics collection
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Write the node-exporter textfile format here after each run
	TextfilePath string `yaml:"textfile_path" json:"textfile_path"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:  BackendFile,
			Path:     defaultStorePath(),
			MaxBytes: 5 * 1024 * 1024,
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "scanfold",
				Username: "scanfold",
				SSLMode:  "disable",
				Table:    "documents",
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "scanfold:",
			},
		},
		Import: ImportConfig{
			DefaultFormat: "auto",
			MaxFileSize:   64 * 1024 * 1024,
			Parallelism:   4,
		},
		Export: ExportConfig{
			ArchiveName: "ports-export.zip",
		},
		Watch: WatchConfig{
			Schedule: "*/5 * * * *",
			Patterns: []string{"*.xml", "*.gnmap"},
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func defaultStorePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "scanfold")
	}
	return ".scanfold"
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Start with defaults
	config := Default()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil // Return defaults if no config file
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path is operator supplied
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "Failed to read config file", err)
	}

	// JSON is a subset of YAML, so one decoder covers both extensions
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("Failed to parse config %s", filepath.Base(path)), err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "Failed to create config directory", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "Failed to marshal config", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "Failed to write config file", err)
	}

	return nil
}

var validate = validator.New()

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return errors.ErrConfigInvalid(fieldPath(first.Namespace()), first.Value())
		}
		return errors.WrapConfigError(errors.CodeValidation, "Invalid configuration", err)
	}

	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Path == "" {
			return errors.ErrConfigMissing("store.path")
		}
	case BackendPostgres:
		if c.Store.Postgres.Host == "" {
			return errors.ErrConfigMissing("store.postgres.host")
		}
		if c.Store.Postgres.Database == "" {
			return errors.ErrConfigMissing("store.postgres.database")
		}
		if c.Store.Postgres.Username == "" {
			return errors.ErrConfigMissing("store.postgres.username")
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return errors.ErrConfigMissing("store.redis.addr")
		}
	}

	if c.Watch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
			return errors.ErrConfigInvalid("watch.schedule", c.Watch.Schedule)
		}
	}
	for _, pattern := range c.Watch.Patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return errors.ErrConfigInvalid("watch.patterns", pattern)
		}
	}

	return nil
}

// fieldPath turns a validator namespace like "Config.Store.Backend" into
// the yaml-style "store.backend".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(name[i-1] >= 'A' && name[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsPersistent reports whether the configured backend outlives the process.
func (c *Config) IsPersistent() bool {
	return c.Store.Backend != BackendMemory
}
