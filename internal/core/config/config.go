package config

import (
	"time"

	redisclient "github.com/nakt/dify-workflow-api-executor/internal/infra/redis"
	"github.com/nakt/dify-workflow-api-executor/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Dify     DifyConfig      `yaml:"dify"`
	Retry    RetryConfig     `yaml:"retry"`
	Ledger   LedgerConfig    `yaml:"ledger"`
	Server   ServerConfig    `yaml:"server"`
	Logging  LoggingConfig   `yaml:"logging"`
	Database postgres.Config `yaml:"database"`
}

// DifyConfig holds the remote workflow endpoint settings.
type DifyConfig struct {
	APIKey     string        `yaml:"api_key"`
	WorkflowID string        `yaml:"workflow_id"`
	BaseURL    string        `yaml:"base_url"`
	User       string        `yaml:"user"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RetryConfig holds per-row retry settings.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// LedgerConfig selects where failed row ids are kept.
type LedgerConfig struct {
	Backend string             `yaml:"backend"` // file, redis
	Path    string             `yaml:"path"`    // file backend; defaults to <output>.retry
	Redis   redisclient.Config `yaml:"redis"`
}

// ServerConfig holds the metrics/health HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

const (
	LedgerBackendFile  = "file"
	LedgerBackendRedis = "redis"
)
