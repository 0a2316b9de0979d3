// Package gojob connects webhook delivery events to go-job queues.
package gojob

import (
	"context"
	"errors"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/webhooks"
)

const JobIDDeliveryEvent = webhooks.JobIDDeliveryEvent

var (
	errEnqueuerMissing = errors.New("gojob: enqueuer is not configured")
	errDeliveryMissing = errors.New("gojob: delivery is not configured")
	errDequeuerMissing = errors.New("gojob: dequeuer is not configured")
)

// RetryPolicy caps queue redelivery for delivery events.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// Apply bounds opts for the given attempt.
func (p RetryPolicy) Apply(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	opts.Reason = strings.TrimSpace(opts.Reason)
	switch {
	case opts.Delay < 0:
		opts.Delay = 0
	case p.MaxDelay > 0 && opts.Delay > p.MaxDelay:
		opts.Delay = p.MaxDelay
	}
	if opts.DeadLetter {
		opts.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		opts.Requeue = false
		opts.DeadLetter = opts.DeadLetter || p.DeadLetterOnMax
	}
	if !opts.Requeue && !opts.DeadLetter {
		opts.Requeue = true
	}
	return opts
}

func toJobMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func fromJobMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// Enqueuer satisfies core.JobEnqueuer on top of a go-job queue.
type Enqueuer struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuer(enqueuer queue.Enqueuer) *Enqueuer {
	return &Enqueuer{enqueuer: enqueuer}
}

func (a *Enqueuer) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return errEnqueuerMissing
	}
	if msg == nil {
		return errors.New("gojob: execution message is required")
	}
	return a.enqueuer.Enqueue(ctx, toJobMessage(msg))
}

// Delivery wraps a go-job delivery and applies RetryPolicy on Nack.
type Delivery struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDelivery(delivery queue.Delivery, policy RetryPolicy) *Delivery {
	return &Delivery{delivery: delivery, policy: policy}
}

func (d *Delivery) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return fromJobMessage(d.delivery.Message())
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return errDeliveryMissing
	}
	return d.delivery.Ack(ctx)
}

func (d *Delivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

// NackForAttempt is picked up by webhooks.EventWorker so attempt caps apply.
func (d *Delivery) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return errDeliveryMissing
	}
	opts = d.policy.Apply(opts, attempt)
	return d.delivery.Nack(ctx, queue.NackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	})
}

type Dequeuer struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuer(dequeuer queue.Dequeuer, policy RetryPolicy) *Dequeuer {
	return &Dequeuer{dequeuer: dequeuer, policy: policy}
}

func (a *Dequeuer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, errDequeuerMissing
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil || delivery == nil {
		return nil, err
	}
	return NewDelivery(delivery, a.policy), nil
}

// WorkerHook forwards go-job worker lifecycle events to a core hook.
type WorkerHook struct {
	hook core.JobWorkerHook
}

func NewWorkerHook(hook core.JobWorkerHook) *WorkerHook {
	return &WorkerHook{hook: hook}
}

func (a *WorkerHook) OnStart(ctx context.Context, event worker.Event) {
	if a != nil && a.hook != nil {
		a.hook.OnStart(ctx, workerEvent(event))
	}
}

func (a *WorkerHook) OnSuccess(ctx context.Context, event worker.Event) {
	if a != nil && a.hook != nil {
		a.hook.OnSuccess(ctx, workerEvent(event))
	}
}

func (a *WorkerHook) OnFailure(ctx context.Context, event worker.Event) {
	if a != nil && a.hook != nil {
		a.hook.OnFailure(ctx, workerEvent(event))
	}
}

func (a *WorkerHook) OnRetry(ctx context.Context, event worker.Event) {
	if a != nil && a.hook != nil {
		a.hook.OnRetry(ctx, workerEvent(event))
	}
}

func workerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   fromJobMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

// QueueHandler returns a webhook handler that enqueues every accepted event.
func QueueHandler(enqueuer queue.Enqueuer) webhooks.QueueEventHandler {
	return webhooks.QueueEventHandler{Enqueuer: NewEnqueuer(enqueuer)}
}

// NewEventWorker drains delivery events from dequeuer into handler.
func NewEventWorker(dequeuer queue.Dequeuer, handler webhooks.EventHandler, policy RetryPolicy) *webhooks.EventWorker {
	w := webhooks.NewEventWorker(NewDequeuer(dequeuer, policy), handler)
	if policy.MaxAttempts > 0 {
		w.MaxAttempts = policy.MaxAttempts
	}
	return w
}

func cloneParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*Enqueuer)(nil)
	_ core.JobDelivery = (*Delivery)(nil)
	_ core.JobDequeuer = (*Dequeuer)(nil)
	_ worker.Hook      = (*WorkerHook)(nil)
)
