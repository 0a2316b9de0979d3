// Command messaging-webhooks receives signed delivery status events.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-messaging/adapters/hclogger"
	"github.com/goliatone/go-messaging/core"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "messaging-webhooks: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig(ctx, nil)
	if err != nil {
		return err
	}

	logger, logCloser, err := hclogger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	app, err := newApp(ctx, cfg, hclogger.NewProvider(logger))
	if err != nil {
		logger.Error("receiver setup failed", "error", err.Error())
		return err
	}
	defer app.Close()

	server := &http.Server{
		Addr:              cfg.Webhook.ListenAddr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook receiver listening", "addr", cfg.Webhook.ListenAddr, "path", cfg.Webhook.Path, "store", app.storeDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("webhook receiver shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// loadConfig reads the environment through the layered resolver. lookup
// replaces os.LookupEnv in tests.
func loadConfig(ctx context.Context, lookup func(string) (string, bool)) (core.Config, error) {
	return core.ResolveConfig(ctx, core.Config{},
		core.WithConfigProvider(core.NewCfgxConfigProvider(core.EnvConfigLoader{Lookup: lookup})),
		core.WithConfigValidator((*core.Config).ValidateWebhook),
	)
}
