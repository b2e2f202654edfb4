package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anstrom/scanfold/internal/errors"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid yaml config",
			file: "config.yaml",
			content: `
store:
  backend: postgres
  postgres:
    host: db.internal
    database: inventory
    username: scanfold
    ssl_mode: require
import:
  parallelism: 8
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Store.Backend != BackendPostgres {
					t.Errorf("Expected backend postgres, got %s", cfg.Store.Backend)
				}
				if cfg.Store.Postgres.Host != "db.internal" {
					t.Errorf("Expected host db.internal, got %s", cfg.Store.Postgres.Host)
				}
				if cfg.Store.Postgres.Table != "documents" {
					t.Errorf("Expected default table to survive, got %s", cfg.Store.Postgres.Table)
				}
				if cfg.Import.Parallelism != 8 {
					t.Errorf("Expected parallelism 8, got %d", cfg.Import.Parallelism)
				}
			},
		},
		{
			name:    "valid json config",
			file:    "config.json",
			content: `{"store": {"backend": "memory"}, "export": {"archive_name": "out.zip"}}`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Store.Backend != BackendMemory {
					t.Errorf("Expected backend memory, got %s", cfg.Store.Backend)
				}
				if cfg.Export.ArchiveName != "out.zip" {
					t.Errorf("Expected archive out.zip, got %s", cfg.Export.ArchiveName)
				}
			},
		},
		{
			name:    "invalid yaml",
			file:    "broken.yaml",
			content: "store: [unterminated",
			wantErr: true,
		},
		{
			name:    "unknown backend",
			file:    "config.yaml",
			content: "store:\n  backend: sqlite\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			cfg, err := Load(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for a missing file, got %v", err)
	}
	if cfg.Store.Backend != BackendFile {
		t.Errorf("Expected default backend file, got %s", cfg.Store.Backend)
	}
	if cfg.Export.ArchiveName != "ports-export.zip" {
		t.Errorf("Expected default archive name, got %s", cfg.Export.ArchiveName)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(c *Config)
		wantField string
		wantCode  errors.ErrorCode
	}{
		{
			name:      "bad backend",
			modify:    func(c *Config) { c.Store.Backend = "sqlite" },
			wantField: "store.backend",
			wantCode:  errors.CodeValidation,
		},
		{
			name:      "file backend without path",
			modify:    func(c *Config) { c.Store.Path = "" },
			wantField: "store.path",
			wantCode:  errors.CodeConfiguration,
		},
		{
			name: "postgres without database",
			modify: func(c *Config) {
				c.Store.Backend = BackendPostgres
				c.Store.Postgres.Database = ""
			},
			wantField: "store.postgres.database",
			wantCode:  errors.CodeConfiguration,
		},
		{
			name: "redis without address",
			modify: func(c *Config) {
				c.Store.Backend = BackendRedis
				c.Store.Redis.Addr = ""
			},
			wantField: "store.redis.addr",
			wantCode:  errors.CodeConfiguration,
		},
		{
			name:      "zero parallelism",
			modify:    func(c *Config) { c.Import.Parallelism = 0 },
			wantField: "import.parallelism",
			wantCode:  errors.CodeValidation,
		},
		{
			name:      "unknown import format",
			modify:    func(c *Config) { c.Import.DefaultFormat = "json" },
			wantField: "import.default_format",
			wantCode:  errors.CodeValidation,
		},
		{
			name:      "bad log level",
			modify:    func(c *Config) { c.Logging.Level = "verbose" },
			wantField: "logging.level",
			wantCode:  errors.CodeValidation,
		},
		{
			name:      "bad cron schedule",
			modify:    func(c *Config) { c.Watch.Schedule = "every minute" },
			wantField: "watch.schedule",
			wantCode:  errors.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			cerr, ok := err.(*errors.ConfigError)
			if !ok {
				t.Fatalf("Expected *errors.ConfigError, got %T", err)
			}
			if cerr.Field != tt.wantField {
				t.Errorf("Expected field %s, got %s", tt.wantField, cerr.Field)
			}
			if cerr.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, cerr.Code)
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = BackendRedis
	cfg.Store.Redis.Addr = "cache:6379"
	cfg.Watch.Directory = "/srv/scans"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Store.Redis.Addr != "cache:6379" {
		t.Errorf("Expected redis addr cache:6379, got %s", loaded.Store.Redis.Addr)
	}
	if loaded.Watch.Directory != "/srv/scans" {
		t.Errorf("Expected watch directory /srv/scans, got %s", loaded.Watch.Directory)
	}
}

func TestFieldPath(t *testing.T) {
	tests := map[string]string{
		"Config.Store.Backend":              "store.backend",
		"Config.Import.DefaultFormat":       "import.default_format",
		"Config.Store.Redis.DB":             "store.redis.db",
		"Config.Logging.Rotation.MaxSizeMB": "logging.rotation.max_size_mb",
	}
	for in, want := range tests {
		if got := fieldPath(in); got != want {
			t.Errorf("fieldPath(%q) = %q, want %q", in, got, want)
		}
	}
}
