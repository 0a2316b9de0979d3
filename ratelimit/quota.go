package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
)

const (
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerReset      = "X-RateLimit-Reset"
	headerRetryAfter = "Retry-After"
)

// quota is the rate limit information carried by one API response. A nil
// field means the response did not say.
type quota struct {
	limit      *int
	remaining  *int
	resetAt    *time.Time
	retryAfter *time.Duration
}

func readQuota(res core.ResponseMeta, now time.Time) quota {
	var q quota
	if v, ok := headerInt(res.Headers, headerLimit); ok {
		q.limit = &v
	}
	if v, ok := headerInt(res.Headers, headerRemaining); ok {
		q.remaining = &v
	}
	if v, ok := headerInt(res.Headers, headerReset); ok && v > 0 {
		resetAt := time.Unix(int64(v), 0).UTC()
		q.resetAt = &resetAt
	}
	if wait, ok := retryAfter(res, now); ok {
		q.retryAfter = &wait
	}
	return q
}

// exhausted reports whether the response tells the client to stop calling.
// Server errors never count and 429 always does. Otherwise only an explicit
// Retry-After or a Remaining header of zero counts.
func (q quota) exhausted(status int) bool {
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status >= http.StatusInternalServerError:
		return false
	case q.retryAfter != nil:
		return true
	}
	return q.remaining != nil && *q.remaining <= 0
}

// retryAfter prefers the executor's parsed hint and falls back to the header,
// which may be delta seconds or an HTTP date.
func retryAfter(res core.ResponseMeta, now time.Time) (time.Duration, bool) {
	if res.RetryAfter != nil && *res.RetryAfter > 0 {
		return *res.RetryAfter, true
	}
	raw := headerValue(res.Headers, headerRetryAfter)
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, seconds > 0
	}
	if at, err := http.ParseTime(raw); err == nil && at.After(now) {
		return at.Sub(now), true
	}
	return 0, false
}

func headerInt(headers map[string]string, key string) (int, bool) {
	raw := headerValue(headers, key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil
}

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return strings.TrimSpace(v)
	}
	for name, v := range headers {
		if strings.EqualFold(strings.TrimSpace(name), key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
