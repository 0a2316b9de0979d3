package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-messaging/core"
)

// JobIDDeliveryEvent is the job id used when events are handed to a queue.
const JobIDDeliveryEvent = "messaging.webhook.delivery_event"

// Event is a verified delivery status event together with its receipt context.
type Event struct {
	Source     string
	Delivery   core.DeliveryEvent
	Attempt    int
	ReceivedAt time.Time
	RequestID  string
}

type EventHandler interface {
	HandleEvent(ctx context.Context, event Event) error
}

type EventHandlerFunc func(ctx context.Context, event Event) error

func (fn EventHandlerFunc) HandleEvent(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// LoggingEventHandler writes one structured line per event.
type LoggingEventHandler struct {
	Logger core.Logger
}

func (h LoggingEventHandler) HandleEvent(ctx context.Context, event Event) error {
	logger := glog.Ensure(h.Logger)
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{
		"source", event.Source,
		"message_id", event.Delivery.ID,
		"status", string(event.Delivery.Status),
		"attempt", event.Attempt,
	}
	if event.Delivery.DeliveredAt != "" {
		args = append(args, "delivered_at", event.Delivery.DeliveredAt)
	}
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	logger.Info("webhook received", args...)
	return nil
}

// QueueEventHandler hands events to a job queue for asynchronous processing.
type QueueEventHandler struct {
	Enqueuer core.JobEnqueuer
}

func (h QueueEventHandler) HandleEvent(ctx context.Context, event Event) error {
	if h.Enqueuer == nil {
		return errors.New("webhooks: queue handler requires an enqueuer")
	}
	return h.Enqueuer.Enqueue(ctx, EventToJob(event))
}

// MultiEventHandler runs every handler in order and stops at the first error.
type MultiEventHandler []EventHandler

func (m MultiEventHandler) HandleEvent(ctx context.Context, event Event) error {
	for _, handler := range m {
		if handler == nil {
			continue
		}
		if err := handler.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func EventToJob(event Event) *core.JobExecutionMessage {
	params := map[string]any{
		"source":      event.Source,
		"id":          event.Delivery.ID,
		"status":      string(event.Delivery.Status),
		"received_at": event.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
	if event.Delivery.DeliveredAt != "" {
		params["delivered_at"] = event.Delivery.DeliveredAt
	}
	if event.RequestID != "" {
		params["request_id"] = event.RequestID
	}
	return &core.JobExecutionMessage{
		JobID:          JobIDDeliveryEvent,
		ScriptPath:     JobIDDeliveryEvent,
		Parameters:     params,
		IdempotencyKey: event.Source + ":" + event.Delivery.DedupeKey(),
		DedupPolicy:    "drop",
	}
}

// EventFromJob rebuilds an event from a queued job and validates it again.
func EventFromJob(msg *core.JobExecutionMessage) (Event, error) {
	if msg == nil {
		return Event{}, errors.New("webhooks: job message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDDeliveryEvent {
		return Event{}, fmt.Errorf("webhooks: unexpected job id %q", msg.JobID)
	}
	event := Event{
		Source: paramString(msg.Parameters, "source"),
		Delivery: core.DeliveryEvent{
			ID:          paramString(msg.Parameters, "id"),
			Status:      core.MessageStatus(paramString(msg.Parameters, "status")),
			DeliveredAt: paramString(msg.Parameters, "delivered_at"),
		},
		RequestID: paramString(msg.Parameters, "request_id"),
	}
	if receivedAt, err := time.Parse(time.RFC3339Nano, paramString(msg.Parameters, "received_at")); err == nil {
		event.ReceivedAt = receivedAt
	}
	if err := event.Delivery.Validate(); err != nil {
		return Event{}, core.NewValidationError("webhooks: invalid queued event", core.FieldErrors(err, "")...)
	}
	return event, nil
}

func paramString(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

var (
	_ EventHandler = LoggingEventHandler{}
	_ EventHandler = QueueEventHandler{}
	_ EventHandler = MultiEventHandler{}
	_ EventHandler = EventHandlerFunc(nil)
)
