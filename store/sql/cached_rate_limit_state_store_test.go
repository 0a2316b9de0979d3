package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/ratelimit"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubRateLimitStateStore struct {
	mu          sync.Mutex
	state       ratelimit.State
	getCalls    int
	upsertCalls int
	getErr      error
}

func (s *stubRateLimitStateStore) Get(_ context.Context, _ core.RateLimitKey) (ratelimit.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return ratelimit.State{}, s.getErr
	}
	return detachState(s.state), nil
}

func (s *stubRateLimitStateStore) Upsert(_ context.Context, state ratelimit.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	s.state = detachState(state)
	return nil
}

var messagesBucket = core.RateLimitKey{Host: "api.example.test", Bucket: "messages"}

func TestCachedRateLimitStateStore_Get_MissFetchThenHit(t *testing.T) {
	base := &stubRateLimitStateStore{
		state: ratelimit.State{Key: messagesBucket, Limit: 100, Remaining: 99, UpdatedAt: time.Now().UTC()},
	}
	store, err := NewCachedRateLimitStateStore(base, newTestRateLimitCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	for i := 0; i < 2; i++ {
		state, err := store.Get(context.Background(), messagesBucket)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if state.Remaining != 99 {
			t.Fatalf("unexpected state %+v", state)
		}
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be a cache hit, base get calls=%d", base.getCalls)
	}
}

func TestCachedRateLimitStateStore_Upsert_InvalidatesCachedKey(t *testing.T) {
	base := &stubRateLimitStateStore{
		state: ratelimit.State{Key: messagesBucket, Limit: 100, Remaining: 99, UpdatedAt: time.Now().UTC()},
	}
	store, err := NewCachedRateLimitStateStore(base, newTestRateLimitCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}
	if _, err := store.Get(context.Background(), messagesBucket); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	if err := store.Upsert(context.Background(), ratelimit.State{
		Key:       messagesBucket,
		Limit:     100,
		Remaining: 40,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	state, err := store.Get(context.Background(), messagesBucket)
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if base.getCalls != 2 || base.upsertCalls != 1 {
		t.Fatalf("expected invalidation to force a second read, gets=%d upserts=%d", base.getCalls, base.upsertCalls)
	}
	if state.Remaining != 40 {
		t.Fatalf("expected refreshed remaining=40, got %d", state.Remaining)
	}
}

func TestCachedRateLimitStateStore_KeyNormalizationSharesEntry(t *testing.T) {
	base := &stubRateLimitStateStore{state: ratelimit.State{Key: messagesBucket, Limit: 100}}
	store, err := NewCachedRateLimitStateStore(base, newTestRateLimitCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}
	mixed := core.RateLimitKey{Host: " API.Example.Test ", Bucket: " Messages "}
	if _, err := store.Get(context.Background(), mixed); err != nil {
		t.Fatalf("mixed case get: %v", err)
	}
	if _, err := store.Get(context.Background(), messagesBucket); err != nil {
		t.Fatalf("normalized get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected keys to share a cache entry, base get calls=%d", base.getCalls)
	}
}

func TestRateLimitStateCacheKey_Format(t *testing.T) {
	key, err := RateLimitStateCacheKey(core.RateLimitKey{Host: " API.Example.Test:8443 ", Bucket: "contacts/v1"})
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}
	const expected = "go-messaging::ratelimit_state::v1::api.example.test:8443::contacts%2Fv1"
	if key != expected {
		t.Fatalf("unexpected cache key: got %q want %q", key, expected)
	}
	if _, err := RateLimitStateCacheKey(core.RateLimitKey{Host: "api.example.test"}); err == nil {
		t.Fatalf("expected missing bucket to fail")
	}
}

func TestCachedRateLimitStateStore_PropagatesBaseErrors(t *testing.T) {
	base := &stubRateLimitStateStore{getErr: ratelimit.ErrStateNotFound}
	store, err := NewCachedRateLimitStateStore(base, newTestRateLimitCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}
	_, err = store.Get(context.Background(), messagesBucket)
	if !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func newTestRateLimitCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
