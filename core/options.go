package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigValidator func(cfg *Config) error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	configValidator ConfigValidator
	executor        Executor
	executorFactory ExecutorFactory
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

// WithConfigValidator replaces the final validation step of config resolution.
func WithConfigValidator(validator ConfigValidator) Option {
	return func(b *serviceBuilder) {
		b.configValidator = validator
	}
}

// WithExecutor injects a ready executor. It wins over WithExecutorFactory.
func WithExecutor(executor Executor) Option {
	return func(b *serviceBuilder) {
		b.executor = executor
	}
}

func WithExecutorFactory(factory ExecutorFactory) Option {
	return func(b *serviceBuilder) {
		b.executorFactory = factory
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("messaging", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		configValidator: (*Config).Validate,
	}
}

// ResolveConfig runs the layered resolution: defaults, the config provider, the
// runtime values, then validation. Options other than config options are ignored.
func ResolveConfig(ctx context.Context, runtime Config, options ...Option) (Config, error) {
	builder := defaultServiceBuilder(runtime)
	for _, opt := range options {
		if opt != nil {
			opt(&builder)
		}
	}
	return builder.resolveConfig(ctx)
}

func (b *serviceBuilder) resolveConfig(ctx context.Context) (Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.errorMapper == nil {
		b.errorMapper = MapError
	}
	if b.configProvider == nil {
		b.configProvider = NewCfgxConfigProvider(nil)
	}
	if b.optionsResolver == nil {
		b.optionsResolver = GoOptionsResolver{}
	}
	if b.configValidator == nil {
		b.configValidator = (*Config).Validate
	}

	defaults := DefaultConfig()
	loaded, err := b.configProvider.Load(ctx, defaults)
	if err != nil {
		return Config{}, mapBuildError(b.errorMapper, err)
	}
	resolved, err := b.optionsResolver.Resolve(defaults, loaded, b.runtimeConfig)
	if err != nil {
		return Config{}, mapBuildError(b.errorMapper, err)
	}
	if err := b.configValidator(&resolved); err != nil {
		return Config{}, mapBuildError(b.errorMapper, NewValidationError(err.Error()))
	}
	return resolved, nil
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader serves a fixed raw map. Useful for tests and embedded setups.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

// CfgxConfigProvider decodes raw values onto the defaults. Structural checks run
// here; required credentials are checked once the layers are merged.
type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).validateShared),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).validateShared),
	)
	if err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap drops zero values unless includeZero is set, so sparse layers
// never mask lower ones.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(target map[string]any, key, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			target[key] = value
		}
	}
	setInt := func(target map[string]any, key string, value int64) {
		if includeZero || value != 0 {
			target[key] = value
		}
	}
	setDuration := func(target map[string]any, key string, value time.Duration) {
		if includeZero || value != 0 {
			target[key] = value
		}
	}
	setBool := func(target map[string]any, key string, value bool) {
		if includeZero || value {
			target[key] = value
		}
	}
	nested := func(key string, fill func(map[string]any)) {
		section := map[string]any{}
		fill(section)
		if includeZero || len(section) > 0 {
			layer[key] = section
		}
	}

	setString(layer, "base_url", cfg.BaseURL)
	setString(layer, "api_key", cfg.APIKey)
	setString(layer, "webhook_secret", cfg.WebhookSecret)
	setDuration(layer, "timeout", cfg.Timeout)

	nested("retry", func(section map[string]any) {
		setInt(section, "max_attempts", int64(cfg.Retry.MaxAttempts))
		if cfg.Retry.RetryNonIdempotent != nil {
			section["retry_non_idempotent"] = *cfg.Retry.RetryNonIdempotent
		}
		backoff := map[string]any{}
		setBool(backoff, "enabled", cfg.Retry.Backoff.Enabled)
		setDuration(backoff, "initial", cfg.Retry.Backoff.Initial)
		setDuration(backoff, "max", cfg.Retry.Backoff.Max)
		if includeZero || cfg.Retry.Backoff.Multiplier != 0 {
			backoff["multiplier"] = cfg.Retry.Backoff.Multiplier
		}
		if includeZero || len(backoff) > 0 {
			section["backoff"] = backoff
		}
	})
	nested("webhook", func(section map[string]any) {
		setString(section, "listen_addr", cfg.Webhook.ListenAddr)
		setString(section, "path", cfg.Webhook.Path)
		setInt(section, "max_body_bytes", cfg.Webhook.MaxBodyBytes)
		setString(section, "burst_mode", cfg.Webhook.BurstMode)
		setDuration(section, "burst_window", cfg.Webhook.BurstWindow)
	})
	nested("log", func(section map[string]any) {
		setString(section, "level", cfg.Log.Level)
		setBool(section, "json", cfg.Log.JSON)
		file := map[string]any{}
		setString(file, "path", cfg.Log.File.Path)
		setString(file, "level", cfg.Log.File.Level)
		setInt(file, "max_size_mb", int64(cfg.Log.File.MaxSizeMB))
		setInt(file, "max_backups", int64(cfg.Log.File.MaxBackups))
		if includeZero || len(file) > 0 {
			section["file"] = file
		}
	})
	nested("store", func(section map[string]any) {
		setString(section, "driver", cfg.Store.Driver)
		setString(section, "dsn", cfg.Store.DSN)
	})
	nested("redis", func(section map[string]any) {
		setString(section, "addr", cfg.Redis.Addr)
		setString(section, "password", cfg.Redis.Password)
		setInt(section, "db", int64(cfg.Redis.DB))
	})
	nested("ingress", func(section map[string]any) {
		setInt(section, "limit", int64(cfg.Ingress.Limit))
		setDuration(section, "window", cfg.Ingress.Window)
	})
	return layer
}

// EnvConfigLoader maps process environment variables onto the raw config tree.
type EnvConfigLoader struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(key string) (string, bool)
}

type envBinding struct {
	env   string
	path  []string
	parse func(string) (any, error)
}

var envBindings = []envBinding{
	{env: "BASE_URL", path: []string{"base_url"}, parse: parseEnvString},
	{env: "API_KEY", path: []string{"api_key"}, parse: parseEnvString},
	{env: "WEBHOOK_SECRET", path: []string{"webhook_secret"}, parse: parseEnvString},
	{env: "MESSAGING_TIMEOUT", path: []string{"timeout"}, parse: parseEnvDuration},
	{env: "MESSAGING_RETRY_MAX_ATTEMPTS", path: []string{"retry", "max_attempts"}, parse: parseEnvInt},
	{env: "MESSAGING_RETRY_NON_IDEMPOTENT", path: []string{"retry", "retry_non_idempotent"}, parse: parseEnvBool},
	{env: "MESSAGING_RETRY_BACKOFF_ENABLED", path: []string{"retry", "backoff", "enabled"}, parse: parseEnvBool},
	{env: "MESSAGING_RETRY_BACKOFF_INITIAL", path: []string{"retry", "backoff", "initial"}, parse: parseEnvDuration},
	{env: "MESSAGING_RETRY_BACKOFF_MAX", path: []string{"retry", "backoff", "max"}, parse: parseEnvDuration},
	{env: "MESSAGING_RETRY_BACKOFF_MULTIPLIER", path: []string{"retry", "backoff", "multiplier"}, parse: parseEnvFloat},
	{env: "WEBHOOK_LISTEN_ADDR", path: []string{"webhook", "listen_addr"}, parse: parseEnvString},
	{env: "WEBHOOK_PATH", path: []string{"webhook", "path"}, parse: parseEnvString},
	{env: "WEBHOOK_MAX_BODY_BYTES", path: []string{"webhook", "max_body_bytes"}, parse: parseEnvInt},
	{env: "WEBHOOK_BURST_MODE", path: []string{"webhook", "burst_mode"}, parse: parseEnvString},
	{env: "WEBHOOK_BURST_WINDOW", path: []string{"webhook", "burst_window"}, parse: parseEnvDuration},
	{env: "LOG_LEVEL", path: []string{"log", "level"}, parse: parseEnvString},
	{env: "LOG_JSON", path: []string{"log", "json"}, parse: parseEnvBool},
	{env: "LOG_FILE", path: []string{"log", "file", "path"}, parse: parseEnvString},
	{env: "LOG_FILE_LEVEL", path: []string{"log", "file", "level"}, parse: parseEnvString},
	{env: "LOG_FILE_MAX_SIZE_MB", path: []string{"log", "file", "max_size_mb"}, parse: parseEnvInt},
	{env: "LOG_FILE_MAX_BACKUPS", path: []string{"log", "file", "max_backups"}, parse: parseEnvInt},
	{env: "STORE_DRIVER", path: []string{"store", "driver"}, parse: parseEnvString},
	{env: "STORE_DSN", path: []string{"store", "dsn"}, parse: parseEnvString},
	{env: "REDIS_ADDR", path: []string{"redis", "addr"}, parse: parseEnvString},
	{env: "REDIS_PASSWORD", path: []string{"redis", "password"}, parse: parseEnvString},
	{env: "REDIS_DB", path: []string{"redis", "db"}, parse: parseEnvInt},
	{env: "WEBHOOK_RATE_LIMIT", path: []string{"ingress", "limit"}, parse: parseEnvInt},
	{env: "WEBHOOK_RATE_WINDOW", path: []string{"ingress", "window"}, parse: parseEnvDuration},
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw := map[string]any{}
	for _, binding := range envBindings {
		value, ok := lookup(binding.env)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		parsed, err := binding.parse(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("core: invalid %s: %w", binding.env, err)
		}
		setRawPath(raw, binding.path, parsed)
	}
	return raw, nil
}

func setRawPath(root map[string]any, path []string, value any) {
	current := root
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

func parseEnvString(value string) (any, error) {
	return value, nil
}

func parseEnvInt(value string) (any, error) {
	return strconv.ParseInt(value, 10, 64)
}

func parseEnvFloat(value string) (any, error) {
	return strconv.ParseFloat(value, 64)
}

func parseEnvBool(value string) (any, error) {
	return strconv.ParseBool(value)
}

// parseEnvDuration accepts Go durations and bare seconds.
func parseEnvDuration(value string) (any, error) {
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}
	return time.ParseDuration(value)
}
