package webhooks

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryDeliveryLedger_ClaimLifecycle(t *testing.T) {
	ledger := NewMemoryDeliveryLedger()
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return now }
	ctx := context.Background()

	record, claimed, err := ledger.Claim(ctx, "messaging", "m1:delivered", []byte("{}"), 30*time.Second)
	if err != nil || !claimed {
		t.Fatalf("expected first claim, got %v %v", claimed, err)
	}
	if record.Status != DeliveryStatusProcessing || record.Attempts != 1 || record.ClaimID == "" {
		t.Fatalf("unexpected claimed record %+v", record)
	}

	if _, claimed, _ := ledger.Claim(ctx, "messaging", "m1:delivered", nil, 30*time.Second); claimed {
		t.Fatalf("expected concurrent claim to be refused while leased")
	}

	now = now.Add(31 * time.Second)
	reclaimed, claimed, err := ledger.Claim(ctx, "messaging", "m1:delivered", nil, 30*time.Second)
	if err != nil || !claimed {
		t.Fatalf("expected expired lease to be reclaimable, got %v %v", claimed, err)
	}
	if reclaimed.ClaimID == record.ClaimID || reclaimed.Attempts != 2 {
		t.Fatalf("expected new claim id and attempt, got %+v", reclaimed)
	}
	if err := ledger.Complete(ctx, record.ClaimID); !errors.Is(err, ErrDeliveryNotFound) {
		t.Fatalf("expected stale claim to be rejected, got %v", err)
	}
	if err := ledger.Complete(ctx, reclaimed.ClaimID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	stored, err := ledger.Get(ctx, "messaging", "m1:delivered")
	if err != nil || stored.Status != DeliveryStatusProcessed {
		t.Fatalf("expected processed record, got %+v %v", stored, err)
	}
	if _, claimed, _ := ledger.Claim(ctx, "messaging", "m1:delivered", nil, time.Second); claimed {
		t.Fatalf("expected processed delivery to stay deduped")
	}
}

func TestMemoryDeliveryLedger_FailTransitions(t *testing.T) {
	ledger := NewMemoryDeliveryLedger()
	ctx := context.Background()
	next := time.Date(2026, 2, 13, 12, 5, 0, 0, time.UTC)

	record, _, _ := ledger.Claim(ctx, "messaging", "m2:failed", nil, time.Minute)
	if err := ledger.Fail(ctx, record.ClaimID, errHandler, next, 2); err != nil {
		t.Fatalf("fail: %v", err)
	}
	stored, _ := ledger.Get(ctx, "messaging", "m2:failed")
	if stored.Status != DeliveryStatusRetryReady || stored.LastError != errHandler.Error() {
		t.Fatalf("unexpected record after first failure %+v", stored)
	}
	if stored.NextAttemptAt == nil || !stored.NextAttemptAt.Equal(next) {
		t.Fatalf("expected next attempt %s, got %+v", next, stored.NextAttemptAt)
	}

	record, claimed, _ := ledger.Claim(ctx, "messaging", "m2:failed", nil, time.Minute)
	if !claimed {
		t.Fatalf("expected retry-ready delivery to be claimable")
	}
	if err := ledger.Fail(ctx, record.ClaimID, errHandler, next, 2); err != nil {
		t.Fatalf("fail: %v", err)
	}
	stored, _ = ledger.Get(ctx, "messaging", "m2:failed")
	if stored.Status != DeliveryStatusDead || stored.NextAttemptAt != nil {
		t.Fatalf("expected dead record, got %+v", stored)
	}
}

func TestMemoryDeliveryLedger_RequiresKeys(t *testing.T) {
	if _, _, err := NewMemoryDeliveryLedger().Claim(context.Background(), " ", "k", nil, time.Second); err == nil {
		t.Fatalf("expected blank source to be rejected")
	}
	if _, err := NewMemoryDeliveryLedger().Get(context.Background(), "messaging", "missing"); !errors.Is(err, ErrDeliveryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
