// Package signature signs and verifies webhook payloads with HMAC-SHA256 over
// canonical JSON. Verification always runs on the exact bytes received.
package signature
