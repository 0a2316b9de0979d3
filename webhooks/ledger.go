package webhooks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusProcessing = "processing"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusDead       = "dead"
)

var ErrDeliveryNotFound = errors.New("webhooks: delivery not found")

type DeliveryRecord struct {
	ID            string
	ClaimID       string
	Source        string
	DedupeKey     string
	Status        string
	Attempts      int
	LastError     string
	Payload       []byte
	LeaseUntil    *time.Time
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeliveryLedger records which events were handled. Claim returns claimed=false
// for a delivery that is processed, dead or leased by another caller.
type DeliveryLedger interface {
	Claim(ctx context.Context, source string, dedupeKey string, payload []byte, lease time.Duration) (DeliveryRecord, bool, error)
	Get(ctx context.Context, source string, dedupeKey string) (DeliveryRecord, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error
}

// Claimable reports whether record may be claimed at now.
func Claimable(record DeliveryRecord, now time.Time) bool {
	switch record.Status {
	case DeliveryStatusPending, DeliveryStatusRetryReady:
		return true
	case DeliveryStatusProcessing:
		return record.LeaseUntil == nil || !now.Before(*record.LeaseUntil)
	default:
		return false
	}
}

// FailedStatus picks retry_ready or dead after a failed attempt.
func FailedStatus(attempts int, maxAttempts int) string {
	if maxAttempts > 0 && attempts >= maxAttempts {
		return DeliveryStatusDead
	}
	return DeliveryStatusRetryReady
}

type MemoryDeliveryLedger struct {
	mu      sync.Mutex
	now     func() time.Time
	records map[string]*DeliveryRecord
	claims  map[string]string
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{
		now:     func() time.Time { return time.Now().UTC() },
		records: map[string]*DeliveryRecord{},
		claims:  map[string]string{},
	}
}

func (l *MemoryDeliveryLedger) Claim(
	_ context.Context,
	source string,
	dedupeKey string,
	payload []byte,
	lease time.Duration,
) (DeliveryRecord, bool, error) {
	source = strings.TrimSpace(source)
	dedupeKey = strings.TrimSpace(dedupeKey)
	if source == "" || dedupeKey == "" {
		return DeliveryRecord{}, false, errors.New("webhooks: source and dedupe key are required")
	}
	key := ledgerKey(source, dedupeKey)
	now := l.now()
	leaseUntil := now.Add(lease)

	l.mu.Lock()
	defer l.mu.Unlock()

	record, exists := l.records[key]
	if !exists {
		record = &DeliveryRecord{
			ID:        uuid.NewString(),
			Source:    source,
			DedupeKey: dedupeKey,
			Payload:   append([]byte(nil), payload...),
			CreatedAt: now,
		}
		l.records[key] = record
	} else if !Claimable(*record, now) {
		return *record, false, nil
	}
	if record.ClaimID != "" {
		delete(l.claims, record.ClaimID)
	}
	record.ClaimID = uuid.NewString()
	record.Status = DeliveryStatusProcessing
	record.Attempts++
	record.LeaseUntil = &leaseUntil
	record.NextAttemptAt = nil
	record.UpdatedAt = now
	l.claims[record.ClaimID] = key
	return *record, true, nil
}

func (l *MemoryDeliveryLedger) Get(_ context.Context, source string, dedupeKey string) (DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[ledgerKey(strings.TrimSpace(source), strings.TrimSpace(dedupeKey))]
	if !ok {
		return DeliveryRecord{}, ErrDeliveryNotFound
	}
	return *record, nil
}

func (l *MemoryDeliveryLedger) Complete(_ context.Context, claimID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.claimed(claimID)
	if err != nil {
		return err
	}
	record.Status = DeliveryStatusProcessed
	record.LeaseUntil = nil
	record.NextAttemptAt = nil
	record.LastError = ""
	record.UpdatedAt = l.now()
	delete(l.claims, claimID)
	return nil
}

func (l *MemoryDeliveryLedger) Fail(_ context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.claimed(claimID)
	if err != nil {
		return err
	}
	record.Status = FailedStatus(record.Attempts, maxAttempts)
	record.LeaseUntil = nil
	if record.Status == DeliveryStatusRetryReady {
		next := nextAttemptAt.UTC()
		record.NextAttemptAt = &next
	} else {
		record.NextAttemptAt = nil
	}
	if cause != nil {
		record.LastError = cause.Error()
	}
	record.UpdatedAt = l.now()
	delete(l.claims, claimID)
	return nil
}

func (l *MemoryDeliveryLedger) claimed(claimID string) (*DeliveryRecord, error) {
	key, ok := l.claims[strings.TrimSpace(claimID)]
	if !ok {
		return nil, ErrDeliveryNotFound
	}
	return l.records[key], nil
}

func ledgerKey(source, dedupeKey string) string {
	return source + "|" + dedupeKey
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)
