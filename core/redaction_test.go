package core

import "testing"

func TestRedactSensitiveMapPreservesTraceabilityMetadata(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"trace_id":       "trace_1",
		"request_id":     "req_1",
		"message_id":     "msg123",
		"api_key":        "sk-live",
		"authorization":  "Bearer secret-token",
		"webhook_secret": "whsec_test",
		"nested":         map[string]any{"signature": "abc", "idempotency_key": "idem_1"},
		"events":         []any{map[string]any{"api_key": "key_1"}, map[string]any{"contact_id": "c_1"}},
	})

	if redacted["trace_id"] != "trace_1" {
		t.Fatalf("expected trace_id to remain visible, got %#v", redacted["trace_id"])
	}
	if redacted["message_id"] != "msg123" {
		t.Fatalf("expected message_id to remain visible, got %#v", redacted["message_id"])
	}
	for _, key := range []string{"api_key", "authorization", "webhook_secret"} {
		if redacted[key] != RedactedValue {
			t.Fatalf("expected %s to be redacted, got %#v", key, redacted[key])
		}
	}
	nested, ok := redacted["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested redacted map")
	}
	if nested["signature"] != RedactedValue {
		t.Fatalf("expected nested signature to be redacted, got %#v", nested["signature"])
	}
	if nested["idempotency_key"] != "idem_1" {
		t.Fatalf("expected idempotency_key to remain visible, got %#v", nested["idempotency_key"])
	}
	events, ok := redacted["events"].([]any)
	if !ok || len(events) != 2 {
		t.Fatalf("expected redacted events slice, got %#v", redacted["events"])
	}
	if first := events[0].(map[string]any); first["api_key"] != RedactedValue {
		t.Fatalf("expected api_key inside slice to be redacted, got %#v", first["api_key"])
	}
}
