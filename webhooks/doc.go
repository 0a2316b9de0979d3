// Package webhooks receives signed delivery status events.
//
// A request is verified against the raw body, decoded, then claimed in a
// DeliveryLedger before any handler runs:
// pending/retry_ready -> processing -> processed|dead.
// A status transition already processed for a message is acknowledged
// without running the handler again.
package webhooks
