package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:messaging_webhook_deliveries,alias:mwd"`

	ID            string     `bun:"id,pk"`
	ClaimID       *string    `bun:"claim_id"`
	Source        string     `bun:"source,notnull"`
	DedupeKey     string     `bun:"dedupe_key,notnull"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	LastError     string     `bun:"last_error,notnull"`
	Payload       []byte     `bun:"payload"`
	LeaseUntil    *time.Time `bun:"lease_until"`
	NextAttemptAt *time.Time `bun:"next_attempt_at"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryEventRecord struct {
	bun.BaseModel `bun:"table:messaging_delivery_events,alias:mde"`

	ID          string         `bun:"id,pk"`
	Source      string         `bun:"source,notnull"`
	MessageID   string         `bun:"message_id,notnull"`
	Status      string         `bun:"status,notnull"`
	DeliveredAt string         `bun:"delivered_at,notnull"`
	Attempt     int            `bun:"attempt,notnull"`
	RequestID   string         `bun:"request_id,notnull"`
	Metadata    map[string]any `bun:"metadata,type:jsonb,notnull"`
	ReceivedAt  time.Time      `bun:"received_at,notnull"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:messaging_rate_limit_state,alias:mrl"`

	ID             string         `bun:"id,pk"`
	Host           string         `bun:"host,notnull"`
	Bucket         string         `bun:"bucket,notnull"`
	Limit          int            `bun:"limit,notnull"`
	Remaining      int            `bun:"remaining,notnull"`
	ResetAt        *time.Time     `bun:"reset_at"`
	RetryAfterMS   *int64         `bun:"retry_after_ms"`
	ThrottledUntil *time.Time     `bun:"throttled_until"`
	LastStatus     int            `bun:"last_status,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	Metadata       map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
