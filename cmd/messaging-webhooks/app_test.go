package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-messaging/adapters/hclogger"
	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/signature"
)

const testSecret = "whsec_receiver"

func TestLoadConfigRequiresWebhookSecret(t *testing.T) {
	_, err := loadConfig(context.Background(), envLookup(map[string]string{}))
	if err == nil || !strings.Contains(err.Error(), "webhook_secret") {
		t.Fatalf("expected missing webhook secret error, got %v", err)
	}

	cfg, err := loadConfig(context.Background(), envLookup(map[string]string{
		"WEBHOOK_SECRET":     testSecret,
		"WEBHOOK_PATH":       "/hooks",
		"WEBHOOK_RATE_LIMIT": "5",
	}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Webhook.Path != "/hooks" || cfg.Ingress.Limit != 5 || cfg.Webhook.ListenAddr != core.DefaultWebhookListenAddr {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestReceiverWithMemoryStore(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Ingress.Limit = 3
	router := newTestRouter(t, cfg)

	body := `{"id":"msg1","status":"delivered","deliveredAt":"2024-12-01T12:00:00Z"}`
	for i := 0; i < 2; i++ {
		rec := postWebhook(router, cfg.Webhook.Path, body, signature.SignBytes([]byte(body), testSecret))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d %s", i, rec.Code, rec.Body.String())
		}
	}

	rec := postWebhook(router, cfg.Webhook.Path, body, "bad-signature")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}

	rec = postWebhook(router, cfg.Webhook.Path, body, signature.SignBytes([]byte(body), testSecret))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected ingress limit to apply, got %d", rec.Code)
	}

	metrics := get(router, "/metrics")
	if !strings.Contains(metrics.Body.String(), `messaging_webhooks_requests_total{status="200"} 2`) {
		t.Fatalf("expected request counter in metrics, got %s", metrics.Body.String())
	}
	if health := get(router, "/healthz"); health.Code != http.StatusOK {
		t.Fatalf("expected healthy receiver, got %d", health.Code)
	}
}

func TestReceiverWithSQLiteStore(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "webhooks.db") + "?_busy_timeout=5000"
	cfg := testConfig(t, map[string]string{"STORE_DRIVER": "sqlite3", "STORE_DSN": dsn})
	a, err := newApp(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.Close)
	router := a.Router()

	body := `{"id":"msg2","status":"failed"}`
	for i := 0; i < 2; i++ {
		rec := postWebhook(router, cfg.Webhook.Path, body, signature.SignBytes([]byte(body), testSecret))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d %s", i, rec.Code, rec.Body.String())
		}
	}

	var rows int
	if err := a.persistence.DB().NewRaw("SELECT COUNT(*) FROM messaging_delivery_events").Scan(context.Background(), &rows); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected duplicate delivery to be stored once, got %d", rows)
	}
	if health := get(router, "/healthz"); health.Code != http.StatusOK {
		t.Fatalf("expected healthy receiver, got %d", health.Code)
	}
}

func TestReceiverRejectsMissingDSN(t *testing.T) {
	cfg := testConfig(t, map[string]string{"STORE_DRIVER": "postgres"})
	if _, err := newApp(context.Background(), cfg, nil); !core.IsKind(err, core.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReceiverBurstModeFromEnv(t *testing.T) {
	cfg := testConfig(t, map[string]string{"WEBHOOK_BURST_MODE": "coalesce", "WEBHOOK_BURST_WINDOW": "10"})
	a, err := newApp(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.Close)
	if a.processor.Burst == nil {
		t.Fatalf("expected burst controller to be configured")
	}
	router := a.Router()

	for _, body := range []string{`{"id":"msg3","status":"queued"}`, `{"id":"msg3","status":"delivered"}`} {
		rec := postWebhook(router, cfg.Webhook.Path, body, signature.SignBytes([]byte(body), testSecret))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected burst events to be acknowledged, got %d %s", rec.Code, rec.Body.String())
		}
	}

	values := map[string]string{"WEBHOOK_SECRET": testSecret, "WEBHOOK_BURST_MODE": "throttle"}
	if _, err := loadConfig(context.Background(), envLookup(values)); err == nil {
		t.Fatalf("expected unknown burst mode to fail validation")
	}
}

func testConfig(t *testing.T, env map[string]string) core.Config {
	t.Helper()
	values := map[string]string{"WEBHOOK_SECRET": testSecret}
	for key, value := range env {
		values[key] = value
	}
	cfg, err := loadConfig(context.Background(), envLookup(values))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func newTestRouter(t *testing.T, cfg core.Config) http.Handler {
	t.Helper()
	logger, _, err := hclogger.New(core.LogConfig{Level: "error"}, hclogger.WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	a, err := newApp(context.Background(), cfg, hclogger.NewProvider(logger))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.Close)
	return a.Router()
}

func postWebhook(handler http.Handler, path, body, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+sig)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func envLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
