package webhooks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/signature"
)

const testSecret = "whsec_test"

type stubVerifier struct {
	err error
}

func (v stubVerifier) Verify(context.Context, core.InboundRequest) error {
	return v.err
}

type recordingHandler struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (h *recordingHandler) HandleEvent(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *recordingHandler) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

type recordingEnqueuer struct {
	messages []*core.JobExecutionMessage
	err      error
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	if e.err != nil {
		return e.err
	}
	e.messages = append(e.messages, msg)
	return nil
}

type stubDelivery struct {
	msg    *core.JobExecutionMessage
	acked  bool
	nacks  []core.JobNackOptions
	ackErr error
}

func (d *stubDelivery) Message() *core.JobExecutionMessage { return d.msg }

func (d *stubDelivery) Ack(context.Context) error {
	d.acked = true
	return d.ackErr
}

func (d *stubDelivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	d.nacks = append(d.nacks, opts)
	return nil
}

type stubDequeuer struct {
	deliveries []core.JobDelivery
	err        error
}

func (q *stubDequeuer) Dequeue(context.Context) (core.JobDelivery, error) {
	if q.err != nil {
		return nil, q.err
	}
	if len(q.deliveries) == 0 {
		return nil, nil
	}
	next := q.deliveries[0]
	q.deliveries = q.deliveries[1:]
	return next, nil
}

type capturingHook struct {
	started, succeeded, failed, retried []core.JobWorkerEvent
}

func (h *capturingHook) OnStart(_ context.Context, e core.JobWorkerEvent)   { h.started = append(h.started, e) }
func (h *capturingHook) OnSuccess(_ context.Context, e core.JobWorkerEvent) { h.succeeded = append(h.succeeded, e) }
func (h *capturingHook) OnFailure(_ context.Context, e core.JobWorkerEvent) { h.failed = append(h.failed, e) }
func (h *capturingHook) OnRetry(_ context.Context, e core.JobWorkerEvent)   { h.retried = append(h.retried, e) }

func signedRequest(t *testing.T, body string) core.InboundRequest {
	t.Helper()
	return core.InboundRequest{
		Source:  "messaging",
		Headers: map[string]string{"Authorization": "Bearer " + signature.SignBytes([]byte(body), testSecret)},
		Body:    []byte(body),
	}
}

var errHandler = errors.New("downstream unavailable")
