package sqlstore

import (
	"github.com/goliatone/go-messaging/ratelimit"
	"github.com/goliatone/go-messaging/webhooks"
)

var (
	_ webhooks.DeliveryLedger = (*WebhookDeliveryStore)(nil)
	_ webhooks.EventHandler   = (*DeliveryEventStore)(nil)
	_ ratelimit.StateStore    = (*RateLimitStateStore)(nil)
	_ ratelimit.StateStore    = (*CachedRateLimitStateStore)(nil)
)
