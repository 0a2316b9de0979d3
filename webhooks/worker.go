package webhooks

import (
	"context"
	"errors"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-messaging/core"
)

type attemptNacker interface {
	NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error
}

// EventWorker drains queued delivery events into a handler.
type EventWorker struct {
	Dequeuer     core.JobDequeuer
	Handler      EventHandler
	Hook         core.JobWorkerHook
	RetryPolicy  RetryPolicy
	MaxAttempts  int
	PollInterval time.Duration
	Logger       core.Logger
	Now          func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

func NewEventWorker(dequeuer core.JobDequeuer, handler EventHandler) *EventWorker {
	return &EventWorker{
		Dequeuer:     dequeuer,
		Handler:      handler,
		RetryPolicy:  ExponentialRetryPolicy{},
		MaxAttempts:  5,
		PollInterval: time.Second,
		Logger:       glog.Nop(),
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

// Run processes deliveries until ctx is done.
func (w *EventWorker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessNext(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			glog.Ensure(w.Logger).Warn("webhook event worker iteration failed", "error", err.Error())
		}
		if processed {
			continue
		}
		timer := time.NewTimer(w.pollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ProcessNext handles one delivery. processed is false when nothing was available.
func (w *EventWorker) ProcessNext(ctx context.Context) (bool, error) {
	if w == nil || w.Dequeuer == nil || w.Handler == nil {
		return false, errors.New("webhooks: event worker requires dequeuer and handler")
	}
	delivery, err := w.Dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}

	msg := delivery.Message()
	key := ""
	if msg != nil {
		key = msg.IdempotencyKey
	}
	attempt := w.nextAttempt(key)
	started := w.now()
	workerEvent := core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: started}
	w.onStart(ctx, workerEvent)

	event, err := EventFromJob(msg)
	if err != nil {
		// malformed jobs never succeed on replay
		workerEvent.Err = err
		workerEvent.Duration = w.now().Sub(started)
		w.onFailure(ctx, workerEvent)
		w.forget(key)
		return true, w.nack(ctx, delivery, core.JobNackOptions{DeadLetter: true, Reason: err.Error()}, attempt)
	}
	event.Attempt = attempt

	if err := w.Handler.HandleEvent(ctx, event); err != nil {
		workerEvent.Err = err
		workerEvent.Duration = w.now().Sub(started)
		if attempt >= w.maxAttempts() {
			w.onFailure(ctx, workerEvent)
			w.forget(key)
			return true, w.nack(ctx, delivery, core.JobNackOptions{DeadLetter: true, Reason: err.Error()}, attempt)
		}
		workerEvent.Delay = w.retryPolicy().NextDelay(attempt)
		w.onRetry(ctx, workerEvent)
		return true, w.nack(ctx, delivery, core.JobNackOptions{Delay: workerEvent.Delay, Requeue: true, Reason: err.Error()}, attempt)
	}

	workerEvent.Duration = w.now().Sub(started)
	w.forget(key)
	if err := delivery.Ack(ctx); err != nil {
		return true, err
	}
	w.onSuccess(ctx, workerEvent)
	return true, nil
}

func (w *EventWorker) nack(ctx context.Context, delivery core.JobDelivery, opts core.JobNackOptions, attempt int) error {
	if nacker, ok := delivery.(attemptNacker); ok {
		return nacker.NackForAttempt(ctx, opts, attempt)
	}
	return delivery.Nack(ctx, opts)
}

func (w *EventWorker) nextAttempt(key string) int {
	if key == "" {
		return 1
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.attempts == nil {
		w.attempts = map[string]int{}
	}
	w.attempts[key]++
	return w.attempts[key]
}

func (w *EventWorker) forget(key string) {
	if key == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

func (w *EventWorker) onStart(ctx context.Context, event core.JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnStart(ctx, event)
	}
}

func (w *EventWorker) onSuccess(ctx context.Context, event core.JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnSuccess(ctx, event)
	}
}

func (w *EventWorker) onFailure(ctx context.Context, event core.JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnFailure(ctx, event)
	}
}

func (w *EventWorker) onRetry(ctx context.Context, event core.JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnRetry(ctx, event)
	}
}

func (w *EventWorker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now().UTC()
}

func (w *EventWorker) retryPolicy() RetryPolicy {
	if w.RetryPolicy != nil {
		return w.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (w *EventWorker) maxAttempts() int {
	if w.MaxAttempts > 0 {
		return w.MaxAttempts
	}
	return 5
}

func (w *EventWorker) pollInterval() time.Duration {
	if w.PollInterval > 0 {
		return w.PollInterval
	}
	return time.Second
}
