package config

import (
	"time"

	redisclient "github.com/vietddude/rowstream/internal/infra/redis"
	"github.com/vietddude/rowstream/internal/infra/storage/postgres"
	"github.com/vietddude/rowstream/internal/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Store    StoreConfig        `yaml:"store"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Logging  LoggingConfig      `yaml:"logging"`
	Retry    retry.Config       `yaml:"retry"`
	Replay   ReplayConfig       `yaml:"replay"`
	Scan     ScanConfig         `yaml:"scan"`
}

// ServerConfig holds health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// StoreConfig holds the data store connection settings.
type StoreConfig struct {
	Endpoint string `yaml:"endpoint"`
	Table    string `yaml:"table"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ReplayConfig holds dead-letter replay worker settings.
type ReplayConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

// ScanConfig holds scan checkpoint settings.
type ScanConfig struct {
	CheckpointRows int           `yaml:"checkpoint_rows"` // rows between checkpoint writes
	CheckpointTTL  time.Duration `yaml:"checkpoint_ttl"`
}
