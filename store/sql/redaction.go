package sqlstore

import "github.com/goliatone/go-messaging/core"

// RedactMetadata masks secrets before metadata is persisted. Payload bytes in
// the delivery ledger are stored as received; only metadata columns are masked.
func RedactMetadata(metadata map[string]any) map[string]any {
	return core.RedactSensitiveMap(metadata)
}
