package redisstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/ratelimit"
	"github.com/redis/go-redis/v9"
)

func TestDecodeWindowResult(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)

	decision, err := decodeWindowResult([]any{int64(2), int64(1500)}, 3, now)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decision.Allowed || decision.Remaining != 1 || !decision.ResetAt.Equal(now.Add(1500*time.Millisecond)) {
		t.Fatalf("unexpected decision %+v", decision)
	}

	denied, err := decodeWindowResult([]any{int64(5), int64(-1)}, 3, now)
	if err != nil {
		t.Fatalf("decode denied: %v", err)
	}
	if denied.Allowed || denied.Remaining != 0 || !denied.ResetAt.Equal(now) {
		t.Fatalf("unexpected denied decision %+v", denied)
	}

	if _, err := decodeWindowResult("OK", 3, now); err == nil {
		t.Fatalf("expected malformed response to fail")
	}
	if _, err := decodeWindowResult([]any{"1", int64(10)}, 3, now); err == nil {
		t.Fatalf("expected non integer counter to fail")
	}
}

func TestStateDocumentKeepsDurations(t *testing.T) {
	resetAt := time.Date(2026, 2, 13, 12, 5, 0, 0, time.UTC)
	retryAfter := 1500 * time.Millisecond
	raw, err := encodeState(ratelimit.State{
		Key:        core.RateLimitKey{Host: "api.example.test", Bucket: "messages"},
		Limit:      10,
		ResetAt:    &resetAt,
		RetryAfter: &retryAfter,
		LastStatus: 429,
		Attempts:   2,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	state, err := decodeState(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.RetryAfter == nil || *state.RetryAfter != retryAfter {
		t.Fatalf("expected retry after to survive, got %v", state.RetryAfter)
	}
	if state.ResetAt == nil || !state.ResetAt.Equal(resetAt) || state.Key.Bucket != "messages" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestKeysUsePrefix(t *testing.T) {
	limiter, err := NewLimiter(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), WithLimiterPrefix("tenant-a"))
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if got := limiter.windowKey("10.0.0.1"); got != "tenant-a:ingress:10.0.0.1" {
		t.Fatalf("unexpected window key %q", got)
	}

	store, err := NewStateStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "", 0)
	if err != nil {
		t.Fatalf("new state store: %v", err)
	}
	if store.ttl != DefaultStateTTL {
		t.Fatalf("expected default ttl, got %s", store.ttl)
	}
	want := DefaultKeyPrefix + ":ratelimit_state:" + ratelimit.StateKey(core.RateLimitKey{Host: "api.example.test", Bucket: "messages"})
	if got := store.stateKey(core.RateLimitKey{Host: "API.example.test", Bucket: "Messages"}); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestConstructorsRequireClient(t *testing.T) {
	if _, err := NewLimiter(nil); err == nil {
		t.Fatalf("expected limiter without client to fail")
	}
	if _, err := NewStateStore(nil, "", 0); err == nil {
		t.Fatalf("expected state store without client to fail")
	}
	if _, err := NewClient(context.Background(), core.RedisConfig{}); !core.IsKind(err, core.KindValidation) {
		t.Fatalf("expected validation error for blank addr, got %v", err)
	}
}

func TestRedisLimiterAndStateStoreLive(t *testing.T) {
	addr := os.Getenv("MESSAGING_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MESSAGING_TEST_REDIS_ADDR is not set")
	}
	ctx := context.Background()
	client, err := NewClient(ctx, core.RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	prefix := fmt.Sprintf("go-messaging-test-%d", time.Now().UnixNano())

	limiter, err := NewLimiter(client, WithLimiterPrefix(prefix))
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	for i := 1; i <= 3; i++ {
		decision, err := limiter.Allow(ctx, "10.0.0.1", 2, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if decision.Allowed != (i <= 2) {
			t.Fatalf("hit %d: unexpected decision %+v", i, decision)
		}
	}

	store, err := NewStateStore(client, prefix, time.Minute)
	if err != nil {
		t.Fatalf("new state store: %v", err)
	}
	key := core.RateLimitKey{Host: "api.example.test", Bucket: "contacts"}
	if _, err := store.Get(ctx, key); !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("expected missing state, got %v", err)
	}
	if err := store.Upsert(ctx, ratelimit.State{Key: key, Limit: 5, Remaining: 1, LastStatus: 200}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	state, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Limit != 5 || state.Remaining != 1 || state.UpdatedAt.IsZero() {
		t.Fatalf("unexpected state %+v", state)
	}
}
