package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/adapters/gologger"
	prommetrics "github.com/goliatone/go-messaging/adapters/prometheus"
	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/migrations"
	"github.com/goliatone/go-messaging/ratelimit"
	redisstore "github.com/goliatone/go-messaging/store/redis"
	sqlstore "github.com/goliatone/go-messaging/store/sql"
	"github.com/goliatone/go-messaging/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type app struct {
	cfg         core.Config
	logger      core.Logger
	metrics     *prommetrics.Recorder
	processor   *webhooks.Processor
	limiter     ratelimit.Limiter
	storeDriver string

	persistence *persistence.Client
	redis       *redis.Client
}

func newApp(ctx context.Context, cfg core.Config, provider core.LoggerProvider) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  gologger.Component(provider, "receiver"),
		metrics: prommetrics.NewRecorder(),
	}

	ledger, events, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	handlers := webhooks.MultiEventHandler{webhooks.LoggingEventHandler{Logger: gologger.Component(provider, "events")}}
	if events != nil {
		handlers = append(handlers, events)
	}
	a.processor = webhooks.NewProcessor(webhooks.NewBearerVerifier(cfg.WebhookSecret), ledger, handlers)
	a.processor.Logger = gologger.Component(provider, "webhooks")
	mode, err := webhooks.ParseBurstMode(cfg.Webhook.BurstMode)
	if err != nil {
		a.Close()
		return nil, core.WrapError(err, core.KindValidation, "invalid webhook burst mode", 0, nil)
	}
	if mode != webhooks.BurstModeNone {
		a.processor.Burst = webhooks.NewBurstController(webhooks.BurstOptions{Mode: mode, Window: cfg.Webhook.BurstWindow})
	}

	if cfg.Ingress.Limit > 0 {
		if a.limiter, err = a.openLimiter(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (webhooks.DeliveryLedger, webhooks.EventHandler, error) {
	driver := strings.ToLower(strings.TrimSpace(a.cfg.Store.Driver))
	if driver == "" {
		driver = "memory"
	}
	a.storeDriver = driver

	var dialect schema.Dialect
	switch driver {
	case "memory":
		return webhooks.NewMemoryDeliveryLedger(), nil, nil
	case "postgres":
		dialect = pgdialect.New()
	case "sqlite3":
		dialect = sqlitedialect.New()
	default:
		return nil, nil, fmt.Errorf("messaging-webhooks: unsupported store driver %q", driver)
	}

	dsn := strings.TrimSpace(a.cfg.Store.DSN)
	if dsn == "" {
		return nil, nil, core.NewValidationError("messaging-webhooks: store.dsn is required for " + driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{driver: driver, server: dsn}, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	a.persistence = client

	if _, err := migrations.RegisterClient(ctx, client, driver); err != nil {
		return nil, nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("messaging-webhooks: migrate: %w", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return nil, nil, err
	}
	return factory.DeliveryLedger(), factory.DeliveryEventStore(), nil
}

func (a *app) openLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	if strings.TrimSpace(a.cfg.Redis.Addr) == "" {
		return ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{}), nil
	}
	client, err := redisstore.NewClient(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.redis = client
	return redisstore.NewLimiter(client)
}

// Router mounts the receiver, metrics and health endpoints.
func (a *app) Router() http.Handler {
	opts := []webhooks.HTTPOption{
		webhooks.WithMaxBodyBytes(a.cfg.Webhook.MaxBodyBytes),
		webhooks.WithHTTPLogger(a.logger),
	}
	if a.limiter != nil {
		opts = append(opts, webhooks.WithIngressLimiter(a.limiter, a.cfg.Ingress.Limit, a.cfg.Ingress.Window))
	}

	router := mux.NewRouter()
	router.Handle(a.cfg.Webhook.Path, a.instrument(webhooks.NewHTTPHandler(a.processor, opts...)))
	router.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	return router
}

func (a *app) healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.ping(r.Context()); err != nil {
		a.logger.Warn("health check failed", "error", err.Error())
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *app) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var errs []error
	if a.persistence != nil {
		errs = append(errs, a.persistence.DB().PingContext(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Ping(ctx).Err())
	}
	return errors.Join(errs...)
}

func (a *app) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		tags := map[string]string{"status": strconv.Itoa(rec.status)}
		a.metrics.IncCounter(r.Context(), "messaging.webhooks.requests.total", 1, tags)
		a.metrics.ObserveHistogram(r.Context(), "messaging.webhooks.requests.duration_ms", float64(time.Since(started).Milliseconds()), tags)
	})
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.persistence != nil {
		_ = a.persistence.Close()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return false }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "messaging-webhooks" }
