package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/ratelimit"
	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// Limiter is a fixed window ratelimit.Limiter shared through Redis.
type Limiter struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

type LimiterOption func(*Limiter)

func WithLimiterPrefix(prefix string) LimiterOption {
	return func(l *Limiter) {
		l.prefix = strings.TrimSpace(prefix)
	}
}

func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLimiter(client redis.Scripter, opts ...LimiterOption) (*Limiter, error) {
	if client == nil {
		return nil, errors.New("redisstore: redis client is required")
	}
	limiter := &Limiter{client: client, prefix: DefaultKeyPrefix, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(limiter)
		}
	}
	return limiter, nil
}

func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Decision, error) {
	if limit <= 0 {
		return ratelimit.Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}
	result, err := fixedWindowScript.Run(ctx, l.client, []string{l.windowKey(key)}, windowMillis).Result()
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("redisstore: rate limit script: %w", err)
	}
	return decodeWindowResult(result, limit, l.now())
}

func (l *Limiter) windowKey(key string) string {
	return prefixed(l.prefix, "ingress", key)
}

func decodeWindowResult(result any, limit int, now time.Time) (ratelimit.Decision, error) {
	values, ok := result.([]any)
	if !ok || len(values) < 2 {
		return ratelimit.Decision{}, errors.New("redisstore: unexpected rate limit response")
	}
	current, ok := values[0].(int64)
	if !ok {
		return ratelimit.Decision{}, errors.New("redisstore: invalid counter response")
	}
	resetAt := now
	if ttlMillis, _ := values[1].(int64); ttlMillis > 0 {
		resetAt = now.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	remaining := limit - int(current)
	if remaining < 0 {
		remaining = 0
	}
	return ratelimit.Decision{
		Allowed:   current <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
