package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL             = "http://localhost:3000"
	DefaultTimeout             = 30 * time.Second
	DefaultMaxAttempts         = 3
	DefaultWebhookListenAddr   = ":8000"
	DefaultWebhookPath         = "/webhooks"
	DefaultWebhookMaxBodyBytes = int64(1 << 20)
	DefaultLogLevel            = "INFO"
	DefaultLogFileLevel        = "WARN"
	DefaultLogFileMaxSizeMB    = 5
	DefaultLogFileMaxBackups   = 3
	DefaultIngressWindow       = time.Minute
)

type BackoffConfig struct {
	Enabled    bool          `koanf:"enabled" mapstructure:"enabled"`
	Initial    time.Duration `koanf:"initial" mapstructure:"initial"`
	Max        time.Duration `koanf:"max" mapstructure:"max"`
	Multiplier float64       `koanf:"multiplier" mapstructure:"multiplier"`
}

type RetryConfig struct {
	MaxAttempts int `koanf:"max_attempts" mapstructure:"max_attempts"`
	// RetryNonIdempotent is nil when unset; unset means enabled.
	RetryNonIdempotent *bool         `koanf:"retry_non_idempotent" mapstructure:"retry_non_idempotent"`
	Backoff            BackoffConfig `koanf:"backoff" mapstructure:"backoff"`
}

// NonIdempotentEnabled reports whether POST and PATCH calls may be retried.
func (c RetryConfig) NonIdempotentEnabled() bool {
	if c.RetryNonIdempotent == nil {
		return true
	}
	return *c.RetryNonIdempotent
}

type WebhookConfig struct {
	ListenAddr   string `koanf:"listen_addr" mapstructure:"listen_addr"`
	Path         string `koanf:"path" mapstructure:"path"`
	MaxBodyBytes int64  `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
	// BurstMode is none, coalesce or debounce. Empty disables burst control.
	BurstMode   string        `koanf:"burst_mode" mapstructure:"burst_mode"`
	BurstWindow time.Duration `koanf:"burst_window" mapstructure:"burst_window"`
}

type LogFileConfig struct {
	Path       string `koanf:"path" mapstructure:"path"`
	Level      string `koanf:"level" mapstructure:"level"`
	MaxSizeMB  int    `koanf:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups" mapstructure:"max_backups"`
}

type LogConfig struct {
	Level string        `koanf:"level" mapstructure:"level"`
	JSON  bool          `koanf:"json" mapstructure:"json"`
	File  LogFileConfig `koanf:"file" mapstructure:"file"`
}

type StoreConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr" mapstructure:"addr"`
	Password string `koanf:"password" mapstructure:"password"`
	DB       int    `koanf:"db" mapstructure:"db"`
}

type IngressConfig struct {
	Limit  int           `koanf:"limit" mapstructure:"limit"`
	Window time.Duration `koanf:"window" mapstructure:"window"`
}

type Config struct {
	BaseURL       string        `koanf:"base_url" mapstructure:"base_url"`
	APIKey        string        `koanf:"api_key" mapstructure:"api_key"`
	WebhookSecret string        `koanf:"webhook_secret" mapstructure:"webhook_secret"`
	Timeout       time.Duration `koanf:"timeout" mapstructure:"timeout"`
	Retry         RetryConfig   `koanf:"retry" mapstructure:"retry"`
	Webhook       WebhookConfig `koanf:"webhook" mapstructure:"webhook"`
	Log           LogConfig     `koanf:"log" mapstructure:"log"`
	Store         StoreConfig   `koanf:"store" mapstructure:"store"`
	Redis         RedisConfig   `koanf:"redis" mapstructure:"redis"`
	Ingress       IngressConfig `koanf:"ingress" mapstructure:"ingress"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
		Retry: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			Backoff: BackoffConfig{
				Initial:    200 * time.Millisecond,
				Max:        5 * time.Second,
				Multiplier: 2,
			},
		},
		Webhook: WebhookConfig{
			ListenAddr:   DefaultWebhookListenAddr,
			Path:         DefaultWebhookPath,
			MaxBodyBytes: DefaultWebhookMaxBodyBytes,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
			File: LogFileConfig{
				Level:      DefaultLogFileLevel,
				MaxSizeMB:  DefaultLogFileMaxSizeMB,
				MaxBackups: DefaultLogFileMaxBackups,
			},
		},
		Ingress: IngressConfig{Window: DefaultIngressWindow},
	}
}

// Validate checks the settings the API client needs.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("core: api_key is required")
	}
	return c.validateShared()
}

// ValidateWebhook checks the settings the webhook receiver needs. The API key
// is not required to receive events.
func (c Config) ValidateWebhook() error {
	if strings.TrimSpace(c.WebhookSecret) == "" {
		return fmt.Errorf("core: webhook_secret is required")
	}
	if strings.TrimSpace(c.Webhook.ListenAddr) == "" {
		return fmt.Errorf("core: webhook.listen_addr is required")
	}
	if !strings.HasPrefix(strings.TrimSpace(c.Webhook.Path), "/") {
		return fmt.Errorf("core: webhook.path must start with /")
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		return fmt.Errorf("core: webhook.max_body_bytes must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.Webhook.BurstMode)) {
	case "", "none", "coalesce", "debounce":
	default:
		return fmt.Errorf("core: webhook.burst_mode %q is not supported", c.Webhook.BurstMode)
	}
	if c.Ingress.Limit > 0 && c.Ingress.Window <= 0 {
		return fmt.Errorf("core: ingress.window must be positive when ingress.limit is set")
	}
	return c.validateShared()
}

func (c Config) validateShared() error {
	parsed, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("core: base_url must be an absolute http(s) url")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("core: timeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("core: retry.max_attempts must be at least 1")
	}
	if c.Retry.Backoff.Enabled {
		if c.Retry.Backoff.Initial <= 0 || c.Retry.Backoff.Max < c.Retry.Backoff.Initial {
			return fmt.Errorf("core: retry.backoff interval bounds are invalid")
		}
		if c.Retry.Backoff.Multiplier < 1 {
			return fmt.Errorf("core: retry.backoff.multiplier must be at least 1")
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "memory", "postgres", "sqlite3":
	default:
		return fmt.Errorf("core: store.driver %q is not supported", c.Store.Driver)
	}
	return nil
}

// Endpoint joins the base url and an API path.
func (c Config) Endpoint(path string) string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func boolPtr(value bool) *bool {
	return &value
}
