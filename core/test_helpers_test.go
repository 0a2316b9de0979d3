package core

import (
	"context"
	"encoding/json"
	"sync"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// recordingExecutor replays canned results and keeps every request it saw.
type recordingExecutor struct {
	mu       sync.Mutex
	requests []ExecuteRequest
	status   int
	body     string
	err      error
}

func (e *recordingExecutor) Execute(_ context.Context, req ExecuteRequest) (ExecuteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	if e.err != nil {
		return ExecuteResult{}, e.err
	}
	status := e.status
	if status == 0 {
		status = 200
	}
	return ExecuteResult{StatusCode: status, Body: json.RawMessage(e.body), Attempts: 1}, nil
}

func (e *recordingExecutor) calls() []ExecuteRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ExecuteRequest, len(e.requests))
	copy(out, e.requests)
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.APIKey = "test-api-key"
	return cfg
}

func newTestService(executor Executor, opts ...Option) (*Service, error) {
	all := append([]Option{WithExecutor(executor), WithLogger(stubLogger{})}, opts...)
	return NewService(testConfig(), all...)
}
