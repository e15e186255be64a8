// Package config loads runtime settings: defaults in code, then an optional
// YAML file, then CHAINLEDGER_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Storage Storage `yaml:"storage"`
	Blob    Blob    `yaml:"blob"`
	Log     Log     `yaml:"log"`
	Metrics bool    `yaml:"metrics" env:"CHAINLEDGER_METRICS"`
}

// Storage selects the patch sink.
type Storage struct {
	Driver      string `yaml:"driver" env:"CHAINLEDGER_STORAGE_DRIVER"`
	SQLitePath  string `yaml:"sqlite_path" env:"CHAINLEDGER_SQLITE_PATH"`
	PostgresDSN string `yaml:"postgres_dsn" env:"CHAINLEDGER_POSTGRES_DSN"`
}

// Blob selects the snapshot archive store.
type Blob struct {
	Driver      string `yaml:"driver" env:"CHAINLEDGER_BLOB_DRIVER"`
	FSRoot      string `yaml:"fs_root" env:"CHAINLEDGER_BLOB_FS_ROOT"`
	S3Bucket    string `yaml:"s3_bucket" env:"CHAINLEDGER_BLOB_S3_BUCKET"`
	S3Region    string `yaml:"s3_region" env:"CHAINLEDGER_BLOB_S3_REGION"`
	S3Endpoint  string `yaml:"s3_endpoint" env:"CHAINLEDGER_BLOB_S3_ENDPOINT"`
	S3PathStyle bool   `yaml:"s3_path_style" env:"CHAINLEDGER_BLOB_S3_PATH_STYLE"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level" env:"CHAINLEDGER_LOG_LEVEL"`
	Format string `yaml:"format" env:"CHAINLEDGER_LOG_FORMAT"`
}

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Storage: Storage{Driver: StorageSQLite, SQLitePath: "chainledger.db"},
		Blob:    Blob{Driver: "fs", FSRoot: "./archives"},
		Log:     Log{Level: "info", Format: "text"},
	}
}

// Load reads path (skipped when empty), applies the environment and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate rejects unknown drivers and incomplete backend settings.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("config: storage.sqlite_path required for sqlite")
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: storage.postgres_dsn required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3Bucket == "" {
			return fmt.Errorf("config: blob.s3_bucket required for s3")
		}
	default:
		return fmt.Errorf("config: unknown blob driver %q", c.Blob.Driver)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}
