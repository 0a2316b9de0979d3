package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-messaging/core"
)

var apiKey = core.RateLimitKey{Host: "api.example.test", Bucket: "messages"}

func fixedPolicy(store StateStore, now *time.Time) *AdaptivePolicy {
	policy := NewAdaptivePolicy(store)
	policy.Now = func() time.Time { return *now }
	return policy
}

func TestAdaptivePolicy_BeforeCallWithoutState(t *testing.T) {
	policy := NewAdaptivePolicy(NewMemoryStateStore())
	if err := policy.BeforeCall(context.Background(), apiKey); err != nil {
		t.Fatalf("expected unknown bucket to pass, got %v", err)
	}
}

func TestAdaptivePolicy_AfterCallRecordsQuotaHeaders(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := fixedPolicy(store, &now)

	err := policy.AfterCall(context.Background(), apiKey, core.ResponseMeta{
		StatusCode: 200,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "120",
			"X-RateLimit-Remaining": "119",
			"X-RateLimit-Reset":     "1700000060",
		},
		Metadata: map[string]any{"path": "/messages"},
	})
	if err != nil {
		t.Fatalf("after call: %v", err)
	}

	state, err := store.Get(context.Background(), core.RateLimitKey{Host: "API.example.test ", Bucket: "Messages"})
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Limit != 120 || state.Remaining != 119 {
		t.Fatalf("unexpected quota %d/%d", state.Remaining, state.Limit)
	}
	if state.ResetAt == nil || !state.ResetAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected reset at %+v", state.ResetAt)
	}
	if state.Metadata["path"] != "/messages" {
		t.Fatalf("expected response metadata to be kept")
	}
	if state.LastStatus != 200 {
		t.Fatalf("expected last status 200, got %d", state.LastStatus)
	}
}

func TestAdaptivePolicy_BeforeCallBlocksInsideThrottleWindow(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := fixedPolicy(store, &now)

	until := now.Add(20 * time.Second)
	if err := store.Upsert(context.Background(), State{Key: apiKey, ThrottledUntil: &until}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	err := policy.BeforeCall(context.Background(), apiKey)
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %T (%v)", err, err)
	}
	if throttled.RetryAfter != 20*time.Second {
		t.Fatalf("expected 20s retry after, got %s", throttled.RetryAfter)
	}
	if throttled.Host != "api.example.test" {
		t.Fatalf("expected normalized host, got %q", throttled.Host)
	}

	now = until.Add(time.Millisecond)
	if err := policy.BeforeCall(context.Background(), apiKey); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestAdaptivePolicy_BeforeCallBlocksOnExhaustedQuota(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := fixedPolicy(store, &now)

	resetAt := now.Add(5 * time.Second)
	if err := store.Upsert(context.Background(), State{Key: apiKey, Remaining: 0, Limit: 10, ResetAt: &resetAt}); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	if err := policy.BeforeCall(context.Background(), apiKey); err == nil {
		t.Fatalf("expected exhausted quota to block")
	}
}

func TestAdaptivePolicy_429HonoursRetryAfter(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := fixedPolicy(store, &now)

	if err := policy.AfterCall(context.Background(), apiKey, core.ResponseMeta{
		StatusCode: 429,
		Headers:    map[string]string{"Retry-After": "7"},
	}); err != nil {
		t.Fatalf("after call: %v", err)
	}

	state, err := store.Get(context.Background(), apiKey)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Attempts != 1 {
		t.Fatalf("expected one throttled attempt, got %d", state.Attempts)
	}
	if state.ThrottledUntil == nil || state.ThrottledUntil.Sub(now) != 7*time.Second {
		t.Fatalf("expected 7s throttle window, got %+v", state.ThrottledUntil)
	}
}

func TestAdaptivePolicy_429UsesExplicitRetryAfterHint(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := fixedPolicy(store, &now)

	hint := 1500 * time.Millisecond
	if err := policy.AfterCall(context.Background(), apiKey, core.ResponseMeta{StatusCode: 429, RetryAfter: &hint}); err != nil {
		t.Fatalf("after call: %v", err)
	}
	state, _ := store.Get(context.Background(), apiKey)
	if state.RetryAfter == nil || *state.RetryAfter != hint {
		t.Fatalf("expected retry hint %s, got %+v", hint, state.RetryAfter)
	}
}

func TestAdaptivePolicy_429WithoutHintBacksOff(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := fixedPolicy(store, &now)
	policy.InitialBackoff = time.Second
	policy.MaxBackoff = 3 * time.Second

	expected := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	for i, want := range expected {
		if err := policy.AfterCall(context.Background(), apiKey, core.ResponseMeta{StatusCode: 429}); err != nil {
			t.Fatalf("throttled call %d: %v", i, err)
		}
		state, _ := store.Get(context.Background(), apiKey)
		if got := state.ThrottledUntil.Sub(now); got != want {
			t.Fatalf("attempt %d: expected %s delay, got %s", i+1, want, got)
		}
	}
}

func TestAdaptivePolicy_SuccessClearsThrottle(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := fixedPolicy(store, &now)

	until := now.Add(10 * time.Second)
	if err := store.Upsert(context.Background(), State{Key: apiKey, Attempts: 2, ThrottledUntil: &until}); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	now = now.Add(11 * time.Second)
	if err := policy.AfterCall(context.Background(), apiKey, core.ResponseMeta{StatusCode: 201}); err != nil {
		t.Fatalf("after call: %v", err)
	}
	state, _ := store.Get(context.Background(), apiKey)
	if state.Attempts != 0 || state.ThrottledUntil != nil {
		t.Fatalf("expected throttle state reset, got %+v", state)
	}
}

func TestAdaptivePolicy_ServerErrorsDoNotThrottle(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := fixedPolicy(store, &now)

	if err := policy.AfterCall(context.Background(), apiKey, core.ResponseMeta{
		StatusCode: 503,
		Headers:    map[string]string{"X-RateLimit-Remaining": "0"},
	}); err != nil {
		t.Fatalf("after call: %v", err)
	}
	state, _ := store.Get(context.Background(), apiKey)
	if state.ThrottledUntil != nil {
		t.Fatalf("expected 5xx not to open a throttle window")
	}
}

func TestNilPolicyIsPermissive(t *testing.T) {
	var policy *AdaptivePolicy
	if err := policy.BeforeCall(context.Background(), apiKey); err != nil {
		t.Fatalf("expected nil policy to allow, got %v", err)
	}
	if err := policy.AfterCall(context.Background(), apiKey, core.ResponseMeta{StatusCode: 429}); err != nil {
		t.Fatalf("expected nil policy to ignore responses, got %v", err)
	}
}

func TestAdaptivePolicy_LimitHeaderAloneDoesNotThrottle(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := fixedPolicy(store, &now)

	for i := 0; i < 3; i++ {
		if err := policy.BeforeCall(context.Background(), apiKey); err != nil {
			t.Fatalf("call %d: expected bucket to stay open, got %v", i+1, err)
		}
		if err := policy.AfterCall(context.Background(), apiKey, core.ResponseMeta{
			StatusCode: 200,
			Headers: map[string]string{
				"X-RateLimit-Limit": "100",
				"X-RateLimit-Reset": "1700000060",
			},
		}); err != nil {
			t.Fatalf("after call: %v", err)
		}
	}
	state, _ := store.Get(context.Background(), apiKey)
	if state.ThrottledUntil != nil || state.Attempts != 0 {
		t.Fatalf("expected no throttle, got %+v", state)
	}
	if state.Remaining != 100 {
		t.Fatalf("expected unknown usage to assume full quota, got %d", state.Remaining)
	}
}

func TestAdaptivePolicy_ExplicitZeroRemainingWaitsForReset(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := fixedPolicy(store, &now)

	if err := policy.AfterCall(context.Background(), apiKey, core.ResponseMeta{
		StatusCode: 200,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "1700000030",
		},
	}); err != nil {
		t.Fatalf("after call: %v", err)
	}
	err := policy.BeforeCall(context.Background(), apiKey)
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected throttled error, got %v", err)
	}
	if throttled.RetryAfter != 30*time.Second {
		t.Fatalf("expected wait until reset, got %s", throttled.RetryAfter)
	}
}
