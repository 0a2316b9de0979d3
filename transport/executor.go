package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-messaging/core"
	"github.com/google/uuid"
)

const (
	DefaultUserAgent = "go-messaging"
	HeaderRequestID  = "X-Request-Id"
)

type serviceErrorConvertible interface {
	ToServiceError() *goerrors.Error
}

// Executor sends authenticated JSON calls to the messaging API. It holds
// read-only state and is safe for concurrent use.
type Executor struct {
	config    core.Config
	baseURL   *url.URL
	transport core.TransportAdapter
	retry     RetryPolicy
	rateLimit core.RateLimitPolicy
	logger    core.Logger
	newID     func() string
	userAgent string
}

type ExecutorOption func(*Executor)

func WithTransport(adapter core.TransportAdapter) ExecutorOption {
	return func(e *Executor) {
		if adapter != nil {
			e.transport = adapter
		}
	}
}

// WithHTTPClient swaps the client behind the default REST adapter.
func WithHTTPClient(client HTTPDoer) ExecutorOption {
	return func(e *Executor) {
		if client != nil {
			e.transport = NewRESTAdapter(client)
		}
	}
}

func WithRateLimitPolicy(policy core.RateLimitPolicy) ExecutorOption {
	return func(e *Executor) {
		e.rateLimit = policy
	}
}

func WithLogger(logger core.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithRequestIDGenerator(fn func() string) ExecutorOption {
	return func(e *Executor) {
		if fn != nil {
			e.newID = fn
		}
	}
}

func WithUserAgent(agent string) ExecutorOption {
	return func(e *Executor) {
		if strings.TrimSpace(agent) != "" {
			e.userAgent = strings.TrimSpace(agent)
		}
	}
}

func NewExecutor(cfg core.Config, opts ...ExecutorOption) (*Executor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, core.NewValidationError("transport: invalid executor config", goerrors.FieldError{
			Field:   "api_key",
			Message: "cannot be blank",
		})
	}
	parsed, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || parsed.Host == "" {
		return nil, core.NewValidationError("transport: invalid executor config", goerrors.FieldError{
			Field:   "base_url",
			Message: "must be an absolute url",
		})
	}

	executor := &Executor{
		config:    cfg,
		baseURL:   parsed,
		retry:     NewRetryPolicy(cfg.Retry),
		logger:    glog.Nop(),
		newID:     func() string { return uuid.NewString() },
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(executor)
		}
	}
	if executor.transport == nil {
		executor.transport = NewRESTAdapter(nil)
	}
	return executor, nil
}

// NewExecutorFactory adapts NewExecutor to core.ExecutorFactory. The service
// logger is used unless an option overrides it.
func NewExecutorFactory(opts ...ExecutorOption) core.ExecutorFactory {
	return func(cfg core.Config, logger core.Logger) (core.Executor, error) {
		all := append([]ExecutorOption{WithLogger(logger)}, opts...)
		return NewExecutor(cfg, all...)
	}
}

func (e *Executor) RetryPolicy() RetryPolicy {
	if e == nil {
		return RetryPolicy{}
	}
	return e.retry
}

func (e *Executor) Execute(ctx context.Context, req core.ExecuteRequest) (core.ExecuteResult, error) {
	if e == nil || e.transport == nil {
		return core.ExecuteResult{}, core.NewRuntimeError(fmt.Errorf("transport: executor is not configured"))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := strings.TrimSpace(req.Path)

	body, err := encodeBody(req.Body)
	if err != nil {
		return core.ExecuteResult{}, core.NewRuntimeError(err)
	}

	requestID := e.newID()
	headers := map[string]string{
		"Authorization": "Bearer " + e.config.APIKey,
		"Content-Type":  "application/json",
		"Accept":        "application/json",
		"User-Agent":    e.userAgent,
		HeaderRequestID: requestID,
	}
	idempotencyKey := ""
	if IsNonIdempotent(method) && e.retry.Retries(method) {
		idempotencyKey = e.newID()
	}

	key := core.RateLimitKey{Host: e.baseURL.Host, Bucket: bucketFor(path)}
	maxAttempts := e.retry.AttemptsFor(method)
	schedule := e.retry.NewBackOff()

	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		if ctxErr := ctx.Err(); ctxErr != nil {
			return core.ExecuteResult{}, core.NewRuntimeError(ctxErr)
		}
		if err := e.beforeCall(ctx, key); err != nil {
			return core.ExecuteResult{}, annotate(err, requestID, attempt)
		}

		res, err := e.transport.Do(ctx, core.TransportRequest{
			Method:      method,
			URL:         e.config.Endpoint(path),
			Headers:     headers,
			Query:       req.Query,
			Body:        body,
			Timeout:     e.config.Timeout,
			Idempotency: idempotencyKey,
			Metadata:    map[string]any{"request_id": requestID, "attempt": attempt},
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return core.ExecuteResult{}, core.NewRuntimeError(ctxErr)
			}
			if !core.IsKind(err, core.KindTransient) {
				return core.ExecuteResult{}, annotate(err, requestID, attempt)
			}
			lastErr = err
		} else {
			e.afterCall(ctx, key, res)
			classified := Classify(method, path, res)
			if classified == nil {
				return core.ExecuteResult{
					StatusCode: res.StatusCode,
					Headers:    res.Headers,
					Body:       normalizeJSON(res.Body),
					Attempts:   attempt,
				}, nil
			}
			if !core.IsKind(classified, core.KindTransient) {
				return core.ExecuteResult{}, annotate(classified, requestID, attempt)
			}
			lastErr = classified
		}

		if attempt >= maxAttempts {
			break
		}
		delay := schedule.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		e.logger.Warn("messaging request retry",
			"method", method,
			"path", path,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay_ms", delay.Milliseconds(),
			"request_id", requestID,
			"error", lastErr.Error(),
		)
		if err := sleepContext(ctx, delay); err != nil {
			return core.ExecuteResult{}, core.NewRuntimeError(err)
		}
	}

	if !e.retry.Retries(method) {
		return core.ExecuteResult{}, annotate(lastErr, requestID, attempt)
	}
	status := core.StatusCodeOf(lastErr)
	if status <= 0 {
		status = http.StatusBadGateway
	}
	e.logger.Error("messaging request retries exhausted",
		"method", method,
		"path", path,
		"attempts", attempt,
		"request_id", requestID,
	)
	return core.ExecuteResult{}, core.WrapError(
		lastErr,
		core.KindRetriesExhausted,
		fmt.Sprintf("request failed after %d attempts", attempt),
		status,
		map[string]any{
			"attempts":    attempt,
			"method":      method,
			"path":        path,
			"status_code": status,
			"request_id":  requestID,
		},
	)
}

// Do executes the call and decodes the JSON body into out when out is not nil.
func (e *Executor) Do(ctx context.Context, method, path string, body any, query map[string]string, out any) error {
	result, err := e.Execute(ctx, core.ExecuteRequest{Method: method, Path: path, Body: body, Query: query})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result.Body, out); err != nil {
		return core.NewValidationError("transport: response could not be decoded", goerrors.FieldError{
			Field:   "response",
			Message: err.Error(),
		})
	}
	return nil
}

func (e *Executor) beforeCall(ctx context.Context, key core.RateLimitKey) error {
	if e.rateLimit == nil {
		return nil
	}
	err := e.rateLimit.BeforeCall(ctx, key)
	if err == nil {
		return nil
	}
	if convertible, ok := err.(serviceErrorConvertible); ok {
		return convertible.ToServiceError()
	}
	e.logger.Warn("messaging rate limit state unavailable", "host", key.Host, "bucket", key.Bucket, "error", err.Error())
	return nil
}

func (e *Executor) afterCall(ctx context.Context, key core.RateLimitKey, res core.TransportResponse) {
	if e.rateLimit == nil {
		return
	}
	meta := core.ResponseMeta{StatusCode: res.StatusCode, Headers: res.Headers, Metadata: res.Metadata}
	if wait, ok := ParseRetryAfter(headerValue(res.Headers, "Retry-After"), time.Now()); ok {
		meta.RetryAfter = &wait
	}
	if err := e.rateLimit.AfterCall(ctx, key, meta); err != nil {
		e.logger.Warn("messaging rate limit state not recorded", "host", key.Host, "bucket", key.Bucket, "error", err.Error())
	}
}

func encodeBody(body any) ([]byte, error) {
	switch typed := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return typed, nil
	case []byte:
		return typed, nil
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(body); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func normalizeJSON(body []byte) json.RawMessage {
	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(body)
}

// bucketFor groups calls by their first path segment, e.g. /contacts/42 -> contacts.
func bucketFor(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "root"
	}
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}

func annotate(err error, requestID string, attempt int) error {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return err
	}
	if rich.Metadata == nil {
		rich.Metadata = map[string]any{}
	}
	rich.Metadata["request_id"] = requestID
	rich.Metadata["attempts"] = attempt
	return err
}

var _ core.Executor = (*Executor)(nil)
