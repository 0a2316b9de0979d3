package transport

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-messaging/core"
)

const maxErrorBodyChars = 2048

// Classify maps a completed exchange onto the error taxonomy. 2xx returns nil.
func Classify(method, path string, res core.TransportResponse) error {
	status := res.StatusCode
	if status >= 200 && status < 300 {
		return nil
	}
	body := truncateBody(res.Body)
	metadata := map[string]any{
		"status_code": status,
		"method":      method,
		"path":        path,
	}
	if body != "" {
		metadata["body"] = body
	}

	switch {
	case status == http.StatusUnauthorized:
		return transportError("Unauthorized access. Check your API key.", core.KindUnauthorized, status, metadata)
	case status == http.StatusNotFound:
		return transportError("Requested resource not found.", core.KindNotFound, status, metadata)
	case status == http.StatusTooManyRequests:
		if retryAfter, ok := ParseRetryAfter(headerValue(res.Headers, "Retry-After"), time.Now()); ok {
			metadata["retry_after_ms"] = retryAfter.Milliseconds()
		}
		return transportError("Rate limit exceeded. Please wait and retry.", core.KindRateLimit, status, metadata)
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return transportError("Transient server error. Please retry.", core.KindTransient, status, metadata)
	case status >= 500 && status <= 599:
		return transportError("Internal server error. Please try again later.", core.KindServerError, status, metadata)
	default:
		message := fmt.Sprintf("API error %d", status)
		if body != "" {
			message = fmt.Sprintf("API error %d: %s", status, body)
		}
		return transportError(message, core.KindAPI, status, metadata)
	}
}

// ParseRetryAfter reads delta seconds or an HTTP date.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	delay := when.Sub(now)
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

func truncateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= maxErrorBodyChars {
		return text
	}
	cut := maxErrorBodyChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func headerValue(headers map[string]string, key string) string {
	if value, ok := headers[key]; ok {
		return value
	}
	for candidate, value := range headers {
		if strings.EqualFold(candidate, key) {
			return value
		}
	}
	return ""
}
