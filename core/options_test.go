package core

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func TestNewService_DefaultDependencies(t *testing.T) {
	svc, err := NewService(testConfig(), WithExecutor(&recordingExecutor{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if deps.ConfigProvider == nil {
		t.Fatalf("expected default config provider")
	}
	if deps.OptionsResolver == nil {
		t.Fatalf("expected default options resolver")
	}
	cfg := svc.Config()
	if cfg.BaseURL != DefaultBaseURL {
		t.Fatalf("expected default base url, got %q", cfg.BaseURL)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts 3, got %d", cfg.Retry.MaxAttempts)
	}
	if !cfg.Retry.NonIdempotentEnabled() {
		t.Fatalf("expected non-idempotent retry enabled by default")
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", cfg.Timeout)
	}
}

func TestNewService_RequiresAPIKey(t *testing.T) {
	_, err := NewService(DefaultConfig(), WithExecutor(&recordingExecutor{}))
	if err == nil {
		t.Fatalf("expected missing api key to fail")
	}
	if !IsKind(err, KindValidation) {
		t.Fatalf("expected validation kind, got %q", KindOf(err))
	}
}

func TestNewService_RequiresExecutor(t *testing.T) {
	if _, err := NewService(testConfig()); err == nil {
		t.Fatalf("expected missing executor to fail")
	}
}

func TestNewService_ExecutorFactoryReceivesResolvedConfig(t *testing.T) {
	var seen Config
	_, err := NewService(testConfig(), WithExecutorFactory(func(cfg Config, logger Logger) (Executor, error) {
		seen = cfg
		if logger == nil {
			t.Fatalf("expected logger to be passed to factory")
		}
		return &recordingExecutor{}, nil
	}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if seen.APIKey != "test-api-key" {
		t.Fatalf("expected factory to see resolved api key, got %q", seen.APIKey)
	}
}

func TestNewService_WithXOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	resolved := testConfig()
	resolved.BaseURL = "https://api.example.com"
	configProvider := &fixedConfigProvider{cfg: testConfig()}
	optionsResolver := &fixedOptionsResolver{cfg: resolved}
	metrics := &memoryMetrics{}

	svc, err := NewService(testConfig(),
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorMapper(customMapper),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
		WithMetricsRecorder(metrics),
		WithExecutor(&recordingExecutor{}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.ConfigProvider != configProvider {
		t.Fatalf("expected custom config provider")
	}
	if deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected custom options resolver")
	}
	if deps.MetricsRecorder != metrics {
		t.Fatalf("expected custom metrics recorder")
	}
	if got := svc.Config().BaseURL; got != "https://api.example.com" {
		t.Fatalf("expected resolver config, got %q", got)
	}
	mapped := deps.ErrorMapper(errors.New("x"))
	if !errors.Is(mapped, sentinel) {
		t.Fatalf("expected custom error mapper")
	}
}

func TestResolveConfig_LayerPrecedence(t *testing.T) {
	loader := mapRawLoader{values: map[string]any{
		"base_url": "https://config.example.com",
		"api_key":  "from-config",
		"retry": map[string]any{
			"max_attempts": 5,
		},
	}}
	runtime := Config{APIKey: "from-runtime"}

	cfg, err := ResolveConfig(context.Background(), runtime, WithConfigProvider(NewCfgxConfigProvider(loader)))
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.APIKey != "from-runtime" {
		t.Fatalf("expected runtime layer to win, got %q", cfg.APIKey)
	}
	if cfg.BaseURL != "https://config.example.com" {
		t.Fatalf("expected config layer base url, got %q", cfg.BaseURL)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("expected config layer max attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Webhook.Path != DefaultWebhookPath {
		t.Fatalf("expected default webhook path, got %q", cfg.Webhook.Path)
	}
}

func TestResolveConfig_ExplicitFalseDisablesNonIdempotentRetry(t *testing.T) {
	runtime := testConfig()
	runtime.Retry.RetryNonIdempotent = boolPtr(false)
	cfg, err := ResolveConfig(context.Background(), runtime)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.Retry.NonIdempotentEnabled() {
		t.Fatalf("expected explicit false to survive resolution")
	}
}

func TestResolveConfig_WebhookValidator(t *testing.T) {
	runtime := Config{WebhookSecret: "whsec_test"}
	cfg, err := ResolveConfig(context.Background(), runtime, WithConfigValidator((*Config).ValidateWebhook))
	if err != nil {
		t.Fatalf("expected webhook config without api key to resolve: %v", err)
	}
	if cfg.Webhook.ListenAddr != ":8000" {
		t.Fatalf("expected default listen addr, got %q", cfg.Webhook.ListenAddr)
	}

	_, err = ResolveConfig(context.Background(), Config{}, WithConfigValidator((*Config).ValidateWebhook))
	if err == nil {
		t.Fatalf("expected missing webhook secret to fail")
	}
}

func TestEnvConfigLoader_MapsVariables(t *testing.T) {
	env := map[string]string{
		"BASE_URL":                       "https://api.example.com",
		"API_KEY":                        "env-key",
		"MESSAGING_TIMEOUT":              "5s",
		"MESSAGING_RETRY_MAX_ATTEMPTS":   "4",
		"MESSAGING_RETRY_NON_IDEMPOTENT": "false",
		"WEBHOOK_RATE_WINDOW":            "30",
	}
	loader := EnvConfigLoader{Lookup: func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}}

	cfg, err := ResolveConfig(context.Background(), Config{}, WithConfigProvider(NewCfgxConfigProvider(loader)))
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.BaseURL != "https://api.example.com" || cfg.APIKey != "env-key" {
		t.Fatalf("unexpected url/key: %q %q", cfg.BaseURL, cfg.APIKey)
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %s", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.NonIdempotentEnabled() {
		t.Fatalf("expected non-idempotent retry disabled from env")
	}
	if cfg.Ingress.Window != 30*time.Second {
		t.Fatalf("expected bare seconds to parse as duration, got %s", cfg.Ingress.Window)
	}
}

func TestEnvConfigLoader_RejectsMalformedValues(t *testing.T) {
	loader := EnvConfigLoader{Lookup: func(key string) (string, bool) {
		if key == "MESSAGING_RETRY_MAX_ATTEMPTS" {
			return "many", true
		}
		return "", false
	}}
	if _, err := loader.LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected malformed integer to fail")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	cfg.BaseURL = "ftp://example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected non-http base url to fail")
	}
	cfg = testConfig()
	cfg.Retry.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected zero max attempts to fail")
	}
	cfg = testConfig()
	cfg.Timeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected zero timeout to fail")
	}
	if err := testConfig().Validate(); err != nil {
		t.Fatalf("expected test config to validate: %v", err)
	}
}
