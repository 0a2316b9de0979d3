package webhooks

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-messaging/core"
)

const DefaultSource = "messaging"

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	return min(delay, maximum)
}

// Processor turns a raw inbound request into at most one handled Event per
// (source, message id, status).
type Processor struct {
	Verifier    Verifier
	Ledger      DeliveryLedger
	Handler     EventHandler
	Burst       BurstController
	RetryPolicy RetryPolicy
	Logger      core.Logger
	ClaimLease  time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func NewProcessor(verifier Verifier, ledger DeliveryLedger, handler EventHandler) *Processor {
	return &Processor{
		Verifier:    verifier,
		Ledger:      ledger,
		Handler:     handler,
		RetryPolicy: ExponentialRetryPolicy{},
		Logger:      glog.Nop(),
		ClaimLease:  30 * time.Second,
		MaxAttempts: 8,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Handler == nil || p.Ledger == nil {
		return failed(http.StatusInternalServerError), core.NewRuntimeError(errors.New("webhooks: processor requires handler and ledger"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = DefaultSource
	}
	logger := glog.Ensure(p.Logger).WithContext(ctx)

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, req); err != nil {
			logger.Error("webhook signature validation failed", "source", source, "error", err.Error())
			status := http.StatusUnauthorized
			if core.IsKind(err, core.KindSignatureComputation) {
				status = http.StatusInternalServerError
			}
			return core.InboundResult{
				StatusCode: status,
				Metadata:   map[string]any{"source": source, "rejected": true},
			}, err
		}
	}

	delivery, err := DecodeEvent(req.Body)
	if err != nil {
		logger.Warn("webhook payload rejected", "source", source, "error", err.Error())
		return core.InboundResult{
			StatusCode: http.StatusUnprocessableEntity,
			Metadata:   map[string]any{"source": source, "rejected": true},
		}, err
	}
	dedupeKey := delivery.DedupeKey()

	event := Event{
		Source:     source,
		Delivery:   delivery,
		ReceivedAt: p.now(),
		RequestID:  metadataString(req.Metadata, "request_id"),
	}

	// Suppressed deliveries never reach the ledger.
	if p.Burst != nil {
		decision, burstErr := p.Burst.Allow(ctx, event)
		if burstErr != nil {
			return failed(http.StatusInternalServerError), burstErr
		}
		if !decision.Allow {
			metadata := decision.Metadata
			if metadata == nil {
				metadata = map[string]any{}
			}
			logger.Info("webhook burst suppressed", "source", source, "dedupe_key", dedupeKey)
			return accepted(source, delivery, metadata), nil
		}
	}

	record, claimed, err := p.Ledger.Claim(ctx, source, dedupeKey, req.Body, p.claimLease())
	if err != nil {
		return failed(http.StatusInternalServerError), err
	}
	if !claimed {
		logger.Info("webhook duplicate acknowledged", "source", source, "dedupe_key", dedupeKey, "status", record.Status)
		return accepted(source, delivery, map[string]any{"deduped": true, "delivery_status": record.Status}), nil
	}

	event.Attempt = record.Attempts

	if err := p.Handler.HandleEvent(ctx, event); err != nil {
		p.fail(ctx, record, err)
		p.releaseBurst(ctx, event)
		logger.Error("webhook handler failed",
			"source", source,
			"dedupe_key", dedupeKey,
			"attempt", record.Attempts,
			"error", err.Error(),
		)
		return failed(http.StatusInternalServerError), err
	}
	if err := p.Ledger.Complete(ctx, record.ClaimID); err != nil {
		return failed(http.StatusInternalServerError), err
	}
	return accepted(source, delivery, map[string]any{"attempt": record.Attempts}), nil
}

// releaseBurst lets a resend of a failed delivery through the burst window.
func (p *Processor) releaseBurst(ctx context.Context, event Event) {
	if releaser, ok := p.Burst.(BurstReleaser); ok {
		releaser.Release(ctx, event)
	}
}

func (p *Processor) fail(ctx context.Context, record DeliveryRecord, cause error) {
	next := p.now().Add(p.retryPolicy().NextDelay(record.Attempts))
	if err := p.Ledger.Fail(ctx, record.ClaimID, cause, next, p.maxAttempts()); err != nil {
		glog.Ensure(p.Logger).Error("webhook delivery ledger update failed", "dedupe_key", record.DedupeKey, "error", err.Error())
	}
}

func accepted(source string, delivery core.DeliveryEvent, metadata map[string]any) core.InboundResult {
	metadata["source"] = source
	metadata["message_id"] = delivery.ID
	metadata["dedupe_key"] = delivery.DedupeKey()
	return core.InboundResult{Accepted: true, StatusCode: http.StatusOK, Metadata: metadata}
}

func failed(status int) core.InboundResult {
	return core.InboundResult{StatusCode: status}
}

func metadataString(metadata map[string]any, key string) string {
	if value, ok := metadata[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) retryPolicy() RetryPolicy {
	if p != nil && p.RetryPolicy != nil {
		return p.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return 30 * time.Second
}

func (p *Processor) maxAttempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return 8
}
