package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/ratelimit"
)

const rateLimitStateCacheKeyPrefix = "go-messaging::ratelimit_state::v1"

// CachedRateLimitStateStore reads through a go-repository-cache service.
// Writes go to the base store first and then evict the cached entry.
type CachedRateLimitStateStore struct {
	base  ratelimit.StateStore
	cache repositorycache.CacheService
}

func NewCachedRateLimitStateStore(base ratelimit.StateStore, cacheService repositorycache.CacheService) (*CachedRateLimitStateStore, error) {
	switch {
	case base == nil:
		return nil, fmt.Errorf("sqlstore: base rate-limit state store is required")
	case cacheService == nil:
		return nil, fmt.Errorf("sqlstore: rate-limit cache service is required")
	}
	return &CachedRateLimitStateStore{base: base, cache: cacheService}, nil
}

// RateLimitStateCacheKey returns prefix::<host>::<bucket> with both segments
// normalized and path escaped.
func RateLimitStateCacheKey(key core.RateLimitKey) (string, error) {
	key, err := checkRateLimitKey(key)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		rateLimitStateCacheKeyPrefix,
		url.PathEscape(key.Host),
		url.PathEscape(key.Bucket),
	}, "::"), nil
}

func (s *CachedRateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: cached rate-limit state store is not configured")
	}
	cacheKey, err := RateLimitStateCacheKey(key)
	if err != nil {
		return ratelimit.State{}, err
	}
	key = ratelimit.NormalizeKey(key)

	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (ratelimit.State, error) {
		return s.base.Get(ctx, key)
	})
	if err != nil {
		return ratelimit.State{}, err
	}
	// cached values are shared, hand callers their own copy
	return detachState(state), nil
}

func (s *CachedRateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached rate-limit state store is not configured")
	}
	cacheKey, err := RateLimitStateCacheKey(state.Key)
	if err != nil {
		return err
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	if err := s.base.Upsert(ctx, state); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func detachState(state ratelimit.State) ratelimit.State {
	state.Metadata = copyAnyMap(state.Metadata)
	state.ResetAt = utcPointer(state.ResetAt)
	state.ThrottledUntil = utcPointer(state.ThrottledUntil)
	if state.RetryAfter != nil {
		d := *state.RetryAfter
		state.RetryAfter = &d
	}
	return state
}
