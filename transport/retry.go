package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goliatone/go-messaging/core"
)

// RetryPolicy bounds how many times a transient failure is attempted.
type RetryPolicy struct {
	MaxAttempts        int
	RetryNonIdempotent bool
	Backoff            core.BackoffConfig
}

func NewRetryPolicy(cfg core.RetryConfig) RetryPolicy {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = core.DefaultMaxAttempts
	}
	return RetryPolicy{
		MaxAttempts:        attempts,
		RetryNonIdempotent: cfg.NonIdempotentEnabled(),
		Backoff:            cfg.Backoff,
	}
}

// IsNonIdempotent reports whether a method may create or mutate state on replay.
func IsNonIdempotent(method string) bool {
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case http.MethodPost, http.MethodPatch:
		return true
	default:
		return false
	}
}

// Retries reports whether a transient failure of method is attempted again.
func (p RetryPolicy) Retries(method string) bool {
	if IsNonIdempotent(method) {
		return p.RetryNonIdempotent
	}
	return true
}

// AttemptsFor returns the attempt budget of one call.
func (p RetryPolicy) AttemptsFor(method string) int {
	if !p.Retries(method) {
		return 1
	}
	if p.MaxAttempts < 1 {
		return core.DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// NewBackOff returns a fresh schedule for one call. Disabled backoff retries immediately.
func (p RetryPolicy) NewBackOff() backoff.BackOff {
	if !p.Backoff.Enabled {
		return &backoff.ZeroBackOff{}
	}
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = p.Backoff.Initial
	schedule.MaxInterval = p.Backoff.Max
	schedule.Multiplier = p.Backoff.Multiplier
	// the attempt budget bounds the call, not elapsed time
	schedule.MaxElapsedTime = 0
	schedule.Reset()
	return schedule
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
