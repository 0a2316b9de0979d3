package core

import "strings"

const RedactedValue = "[REDACTED]"

// sensitiveFragments mark a key as secret when they appear anywhere in it.
var sensitiveFragments = []string{
	"password", "secret", "token", "authorization", "api_key", "apikey",
	"access_key", "refresh", "credential", "signature", "bearer", "hmac",
}

// correlationKeys are never masked even when they contain a sensitive fragment.
var correlationKeys = map[string]bool{
	"message_id":      true,
	"contact_id":      true,
	"delivery_id":     true,
	"dedupe_key":      true,
	"event_id":        true,
	"idempotency_key": true,
	"trace_id":        true,
	"request_id":      true,
}

// RedactSensitiveMap returns a deep copy of metadata with secret-looking keys
// replaced by RedactedValue. Nested maps and slices are walked.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if isSensitiveKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(v)
	case map[string]string:
		out := make(map[string]string, len(v))
		for key, item := range v {
			if isSensitiveKey(key) {
				item = RedactedValue
			}
			out[key] = item
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactValue(item)
		}
		return out
	}
	return value
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || correlationKeys[key] {
		return false
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}
