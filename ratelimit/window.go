package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-messaging/core"
)

var ErrLimiterFull = errors.New("ratelimit: limiter capacity exceeded")

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the wait until the current window closes.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter counts hits per key inside fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

type windowBucket struct {
	count     int
	windowEnd time.Time
}

type MemoryLimiterConfig struct {
	Now     func() time.Time
	MaxKeys int
}

// MemoryLimiter is a process local fixed window limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets map[string]*windowBucket
	maxKeys int
}

func NewMemoryLimiter(cfg MemoryLimiterConfig) *MemoryLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	return &MemoryLimiter{
		now:     cfg.Now,
		buckets: map[string]*windowBucket{},
		maxKeys: cfg.MaxKeys,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	key = strings.TrimSpace(key)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.buckets[key]
	if ok && !now.Before(bucket.windowEnd) {
		delete(m.buckets, key)
		ok = false
	}
	if !ok {
		if len(m.buckets) >= m.maxKeys {
			m.sweep(now)
		}
		if len(m.buckets) >= m.maxKeys {
			return Decision{}, ErrLimiterFull
		}
		bucket = &windowBucket{windowEnd: now.Add(window)}
		m.buckets[key] = bucket
	}

	if bucket.count >= limit {
		return Decision{Allowed: false, Limit: limit, ResetAt: bucket.windowEnd}, nil
	}
	bucket.count++
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - bucket.count,
		ResetAt:   bucket.windowEnd,
	}, nil
}

func (m *MemoryLimiter) sweep(now time.Time) {
	for key, bucket := range m.buckets {
		if !now.Before(bucket.windowEnd) {
			delete(m.buckets, key)
		}
	}
}

// WriteHeaders sets the RateLimit-* and Retry-After headers for d.
func WriteHeaders(header http.Header, d Decision, now time.Time) {
	if header == nil || d.Limit <= 0 {
		return
	}
	header.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
	header.Set("RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
	reset := retrySeconds(d.RetryAfter(now))
	header.Set("RateLimit-Reset", strconv.Itoa(reset))
	if !d.Allowed {
		header.Set("Retry-After", strconv.Itoa(reset))
	}
}

// DeniedError describes a rejected decision as a rate limit envelope.
func DeniedError(key string, d Decision, now time.Time) *goerrors.Error {
	wait := d.RetryAfter(now)
	return core.NewError(core.KindRateLimit, "Rate limit exceeded. Please wait and retry.", http.StatusTooManyRequests, map[string]any{
		"limiter_key":    key,
		"limit":          d.Limit,
		"retry_after_ms": wait.Milliseconds(),
	})
}

func retrySeconds(wait time.Duration) int {
	if wait <= 0 {
		return 0
	}
	seconds := int(wait / time.Second)
	if wait%time.Second != 0 {
		seconds++
	}
	return seconds
}

var _ Limiter = (*MemoryLimiter)(nil)
