package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// NopMetricsRecorder discards every measurement.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// observeOperation emits messaging.<op>.total and messaging.<op>.duration_ms
// plus one structured log line for a finished service call.
func (s *Service) observeOperation(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	if s == nil {
		return
	}
	op := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(operation)))
	if op == "" {
		op = "unknown"
	}
	elapsed := time.Since(startedAt)
	status := "success"
	if err != nil {
		status = "failure"
	}

	entry := maps.Clone(fields)
	if entry == nil {
		entry = map[string]any{}
	}
	entry["event_type"] = op
	entry["status"] = status
	entry["duration_ms"] = elapsed.Milliseconds()

	tags := map[string]string{"operation": op, "status": status}
	for _, key := range []string{"resource", "method"} {
		if value, ok := entry[key]; ok && value != nil {
			if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
				tags[key] = text
			}
		}
	}
	if err != nil {
		addErrorFields(entry, err)
		tags["error_kind"] = KindOf(err).String()
	}

	if s.metricsRecorder != nil {
		s.metricsRecorder.IncCounter(ctx, "messaging."+op+".total", 1, maps.Clone(tags))
		s.metricsRecorder.ObserveHistogram(ctx, "messaging."+op+".duration_ms", float64(elapsed.Milliseconds()), maps.Clone(tags))
	}

	if err != nil {
		s.emit(ctx, true, op+" failed", entry)
		return
	}
	s.emit(ctx, false, op+" succeeded", entry)
}

func addErrorFields(fields map[string]any, err error) {
	fields["error"] = err.Error()
	fields["error_kind"] = KindOf(err).String()

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return
	}
	fields["error_category"] = fmt.Sprint(rich.Category)
	fields["error_text_code"] = rich.TextCode
	if rich.Code > 0 {
		fields["status_code"] = rich.Code
	}
	if len(rich.Metadata) > 0 {
		for _, key := range []string{"request_id", "trace_id", "attempts"} {
			if value, ok := rich.Metadata[key]; ok {
				fields[key] = value
			}
		}
		fields["error_metadata"] = RedactSensitiveMap(rich.Metadata)
	}
}

func (s *Service) emit(ctx context.Context, failed bool, message string, fields map[string]any) {
	if s.logger == nil {
		return
	}
	fields = RedactSensitiveMap(fields)
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fl, ok := logger.(FieldsLogger); ok {
		logger = fl.WithFields(maps.Clone(fields))
	}

	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	if failed {
		logger.Error(message, args...)
		return
	}
	logger.Info(message, args...)
}
