package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/webhooks"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WebhookDeliveryStore is the SQL delivery ledger. Claims are a conditional
// UPDATE so two receivers never process the same delivery at once.
type WebhookDeliveryStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewWebhookDeliveryStore(db *bun.DB) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &WebhookDeliveryStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *WebhookDeliveryStore) Claim(
	ctx context.Context,
	source string,
	dedupeKey string,
	payload []byte,
	lease time.Duration,
) (webhooks.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	source = strings.TrimSpace(source)
	dedupeKey = strings.TrimSpace(dedupeKey)
	if source == "" || dedupeKey == "" {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: source and dedupe key are required")
	}

	now := s.now().UTC()
	seed := &webhookDeliveryRecord{
		ID:        uuid.NewString(),
		Source:    source,
		DedupeKey: dedupeKey,
		Status:    webhooks.DeliveryStatusPending,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.NewInsert().
		Model(seed).
		On("CONFLICT (source, dedupe_key) DO NOTHING").
		Exec(ctx); err != nil && !isUniqueViolation(err) {
		return webhooks.DeliveryRecord{}, false, err
	}

	claimID := uuid.NewString()
	leaseUntil := now.Add(lease)
	res, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("claim_id = ?", claimID).
		Set("status = ?", webhooks.DeliveryStatusProcessing).
		Set("attempts = attempts + 1").
		Set("lease_until = ?", leaseUntil).
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", now).
		Where("source = ?", source).
		Where("dedupe_key = ?", dedupeKey).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.
				Where("status IN (?)", bun.In([]string{webhooks.DeliveryStatusPending, webhooks.DeliveryStatusRetryReady})).
				WhereOr("status = ? AND (lease_until IS NULL OR lease_until <= ?)", webhooks.DeliveryStatusProcessing, now)
		}).
		Exec(ctx)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	claimed := rowsAffected(res) == 1

	record, err := s.Get(ctx, source, dedupeKey)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	return record, claimed, nil
}

func (s *WebhookDeliveryStore) Get(
	ctx context.Context,
	source string,
	dedupeKey string,
) (webhooks.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	record := &webhookDeliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.source = ?", strings.TrimSpace(source)).
		Where("?TableAlias.dedupe_key = ?", strings.TrimSpace(dedupeKey)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return webhooks.DeliveryRecord{}, webhooks.ErrDeliveryNotFound
		}
		return webhooks.DeliveryRecord{}, err
	}
	return webhookDeliveryToDomain(record), nil
}

func (s *WebhookDeliveryStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", webhooks.DeliveryStatusProcessed).
		Set("claim_id = NULL").
		Set("lease_until = NULL").
		Set("next_attempt_at = NULL").
		Set("last_error = ''").
		Set("updated_at = ?", s.now().UTC()).
		Where("claim_id = ?", strings.TrimSpace(claimID)).
		Where("status = ?", webhooks.DeliveryStatusProcessing).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rowsAffected(res) == 0 {
		return webhooks.ErrDeliveryNotFound
	}
	return nil
}

func (s *WebhookDeliveryStore) Fail(
	ctx context.Context,
	claimID string,
	cause error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &webhookDeliveryRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.claim_id = ?", claimID).
			Where("?TableAlias.status = ?", webhooks.DeliveryStatusProcessing).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return webhooks.ErrDeliveryNotFound
			}
			return err
		}

		status := webhooks.FailedStatus(record.Attempts, maxAttempts)
		var next *time.Time
		if status == webhooks.DeliveryStatusRetryReady {
			value := nextAttemptAt.UTC()
			next = &value
		}
		lastError := record.LastError
		if cause != nil {
			lastError = cause.Error()
		}
		_, err = tx.NewUpdate().
			Model((*webhookDeliveryRecord)(nil)).
			Set("status = ?", status).
			Set("claim_id = NULL").
			Set("lease_until = NULL").
			Set("next_attempt_at = ?", next).
			Set("last_error = ?", lastError).
			Set("updated_at = ?", s.now().UTC()).
			Where("id = ?", record.ID).
			Exec(ctx)
		return err
	})
}

func webhookDeliveryToDomain(record *webhookDeliveryRecord) webhooks.DeliveryRecord {
	if record == nil {
		return webhooks.DeliveryRecord{}
	}
	result := webhooks.DeliveryRecord{
		ID:            record.ID,
		Source:        record.Source,
		DedupeKey:     record.DedupeKey,
		Status:        record.Status,
		Attempts:      record.Attempts,
		LastError:     record.LastError,
		Payload:       append([]byte(nil), record.Payload...),
		LeaseUntil:    utcPointer(record.LeaseUntil),
		NextAttemptAt: utcPointer(record.NextAttemptAt),
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
	if record.ClaimID != nil {
		result.ClaimID = *record.ClaimID
	}
	return result
}

func rowsAffected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
