package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-messaging/core"
)

// ThrottledError is returned by BeforeCall while a bucket is cooling down.
type ThrottledError struct {
	Host       string
	Bucket     string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: host %q bucket %q throttled for %s",
		strings.TrimSpace(e.Host), strings.TrimSpace(e.Bucket), e.RetryAfter)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"host":   strings.TrimSpace(e.Host),
		"bucket": strings.TrimSpace(e.Bucket),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return core.WrapError(e, core.KindRateLimit, e.Error(), http.StatusTooManyRequests, metadata)
}

// AdaptivePolicy learns quota state from API responses and refuses calls while
// a bucket is throttled. Without a Retry-After hint, consecutive throttled
// responses back off exponentially from InitialBackoff up to MaxBackoff.
type AdaptivePolicy struct {
	Store            StateStore
	Now              func() time.Time
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	DefaultRetryHint time.Duration
}

func NewAdaptivePolicy(store StateStore) *AdaptivePolicy {
	return &AdaptivePolicy{
		Store:            store,
		Now:              func() time.Time { return time.Now().UTC() },
		InitialBackoff:   time.Second,
		MaxBackoff:       time.Minute,
		DefaultRetryHint: 5 * time.Second,
	}
}

func (p *AdaptivePolicy) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	if p == nil || p.Store == nil {
		return nil
	}
	state, err := p.Store.Get(ctx, NormalizeKey(key))
	switch {
	case errors.Is(err, ErrStateNotFound):
		return nil
	case err != nil:
		return err
	}
	if wait := state.throttledAt(p.now()); wait > 0 {
		return ThrottledError{Host: state.Key.Host, Bucket: state.Key.Bucket, RetryAfter: wait}
	}
	return nil
}

func (p *AdaptivePolicy) AfterCall(ctx context.Context, key core.RateLimitKey, res core.ResponseMeta) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = NormalizeKey(key)
	state, err := p.Store.Get(ctx, key)
	fresh := errors.Is(err, ErrStateNotFound)
	switch {
	case fresh:
		state = State{Key: key}
	case err != nil:
		return err
	}

	now := p.now()
	q := readQuota(res, now)
	state.LastStatus = res.StatusCode
	state.UpdatedAt = now
	state.RetryAfter = q.retryAfter
	state.Metadata = cloneMap(state.Metadata)
	for k, v := range res.Metadata {
		state.Metadata[k] = v
	}
	if q.limit != nil {
		state.Limit = *q.limit
	}
	switch {
	case q.remaining != nil:
		state.Remaining = *q.remaining
	case fresh && q.limit != nil:
		// no usage reported yet, assume the full quota
		state.Remaining = *q.limit
	}
	if q.resetAt != nil {
		state.ResetAt = q.resetAt
	}

	if q.exhausted(res.StatusCode) {
		state.Attempts++
		wait := p.backoff(state.Attempts)
		switch {
		case q.retryAfter != nil:
			wait = *q.retryAfter
		case res.StatusCode != http.StatusTooManyRequests && q.resetAt != nil && q.resetAt.After(now):
			wait = q.resetAt.Sub(now)
		}
		until := now.Add(wait)
		state.ThrottledUntil = &until
	} else {
		state.Attempts = 0
		state.ThrottledUntil = nil
	}
	return p.Store.Upsert(ctx, state)
}

func (p *AdaptivePolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// backoff is the delay for the given consecutive throttled attempt.
func (p *AdaptivePolicy) backoff(attempt int) time.Duration {
	initial, maximum := p.InitialBackoff, p.MaxBackoff
	if initial <= 0 {
		initial = time.Second
	}
	if maximum <= 0 {
		maximum = time.Minute
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maximum,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	wait := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		wait = b.NextBackOff()
	}
	if wait <= 0 {
		return p.defaultRetryHint()
	}
	return wait
}

func (p *AdaptivePolicy) defaultRetryHint() time.Duration {
	if p != nil && p.DefaultRetryHint > 0 {
		return p.DefaultRetryHint
	}
	return 5 * time.Second
}

var _ core.RateLimitPolicy = (*AdaptivePolicy)(nil)
