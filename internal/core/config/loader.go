package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
)

const (
	DefaultBaseURL      = "https://api.dify.ai/v1"
	DefaultUser         = "batch-executor"
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 60 * time.Second
	DefaultTimeout      = 300 * time.Second
)

// Load reads configuration from a YAML file and applies environment overrides.
// A missing file is not an error: the executor can be configured from the environment alone.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	// An unset ${VAR} in the file expands to "", fall back to defaults.
	if cfg.Dify.BaseURL == "" {
		cfg.Dify.BaseURL = DefaultBaseURL
	}
	if cfg.Dify.User == "" {
		cfg.Dify.User = DefaultUser
	}
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = LedgerBackendFile
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() AppConfig {
	return AppConfig{
		Dify: DifyConfig{
			BaseURL: DefaultBaseURL,
			User:    DefaultUser,
			Timeout: DefaultTimeout,
		},
		Retry: RetryConfig{
			MaxRetries:   DefaultMaxRetries,
			InitialDelay: DefaultInitialDelay,
			MaxDelay:     DefaultMaxDelay,
		},
		Ledger:  LedgerConfig{Backend: LedgerBackendFile},
		Logging: LoggingConfig{Level: "info"},
	}
}

// applyEnv overrides file values with the variables the executor has always read.
func applyEnv(cfg *AppConfig) error {
	setString(&cfg.Dify.APIKey, "DIFY_API_KEY")
	setString(&cfg.Dify.WorkflowID, "DIFY_WORKFLOW_ID")
	setString(&cfg.Dify.BaseURL, "DIFY_API_BASE_URL")
	setString(&cfg.Dify.User, "DIFY_USER")
	setString(&cfg.Ledger.Backend, "LEDGER_BACKEND")
	setString(&cfg.Ledger.Redis.URL, "REDIS_URL")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Logging.Level, "LOG_LEVEL")

	if v, ok := lookup("MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_RETRIES %q: %w", v, err)
		}
		cfg.Retry.MaxRetries = n
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"INITIAL_RETRY_DELAY", &cfg.Retry.InitialDelay},
		{"MAX_RETRY_DELAY", &cfg.Retry.MaxDelay},
		{"TIMEOUT", &cfg.Dify.Timeout},
	} {
		v, ok := lookup(d.key)
		if !ok {
			continue
		}
		parsed, err := ParseSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, v, err)
		}
		*d.dst = parsed
	}

	if v, ok := lookup("METRICS_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid METRICS_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	return nil
}

// ParseSeconds accepts plain seconds ("1.5") or a Go duration ("1500ms").
func ParseSeconds(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

// Validate checks the settings required before any row is processed.
func (c *AppConfig) Validate() error {
	if c.Dify.APIKey == "" {
		return fmt.Errorf("%w: DIFY_API_KEY is required", domain.ErrMissingCredentials)
	}
	if c.Dify.WorkflowID == "" {
		return fmt.Errorf("%w: DIFY_WORKFLOW_ID is required", domain.ErrMissingCredentials)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative: %d", c.Retry.MaxRetries)
	}
	if c.Retry.InitialDelay < 0 || c.Retry.MaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.Dify.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	switch c.Ledger.Backend {
	case LedgerBackendFile:
	case LedgerBackendRedis:
		if c.Ledger.Redis.URL == "" {
			return fmt.Errorf("ledger backend redis requires redis.url")
		}
	default:
		return fmt.Errorf("unsupported ledger backend: %s", c.Ledger.Backend)
	}
	return nil
}

// MaskedAPIKey returns the API key with all but its last four characters hidden.
func (c *AppConfig) MaskedAPIKey() string {
	key := c.Dify.APIKey
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
