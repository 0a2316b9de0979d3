package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/ratelimit"
)

const (
	MessageProcessed = "Webhook processed successfully."

	detailInvalidSignature = "Invalid signature."
	detailInternal         = "Internal Server Error."
	detailMethodNotAllowed = "Method Not Allowed"
	detailTooManyRequests  = "Too Many Requests."
)

// HTTPHandler serves POST deliveries for a Processor.
type HTTPHandler struct {
	processor    *Processor
	source       string
	maxBodyBytes int64
	limiter      ratelimit.Limiter
	limit        int
	window       time.Duration
	clientKey    func(*http.Request) string
	logger       core.Logger
	now          func() time.Time
}

type HTTPOption func(*HTTPHandler)

func WithMaxBodyBytes(limit int64) HTTPOption {
	return func(h *HTTPHandler) {
		if limit > 0 {
			h.maxBodyBytes = limit
		}
	}
}

// WithIngressLimiter rejects callers above limit requests per window.
func WithIngressLimiter(limiter ratelimit.Limiter, limit int, window time.Duration) HTTPOption {
	return func(h *HTTPHandler) {
		h.limiter = limiter
		h.limit = limit
		h.window = window
	}
}

func WithClientKey(fn func(*http.Request) string) HTTPOption {
	return func(h *HTTPHandler) {
		if fn != nil {
			h.clientKey = fn
		}
	}
}

func WithSource(source string) HTTPOption {
	return func(h *HTTPHandler) {
		if strings.TrimSpace(source) != "" {
			h.source = strings.TrimSpace(source)
		}
	}
}

func WithHTTPLogger(logger core.Logger) HTTPOption {
	return func(h *HTTPHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHTTPHandler(processor *Processor, opts ...HTTPOption) *HTTPHandler {
	handler := &HTTPHandler{
		processor:    processor,
		source:       DefaultSource,
		maxBodyBytes: core.DefaultWebhookMaxBodyBytes,
		clientKey:    RemoteIP,
		logger:       glog.Nop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeDetail(w, http.StatusMethodNotAllowed, detailMethodNotAllowed)
		return
	}
	if !h.admit(w, r) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeSchemaError(w, &SchemaError{Issues: []SchemaIssue{{
				Loc:  []string{"body"},
				Msg:  fmt.Sprintf("body exceeds %d bytes", h.maxBodyBytes),
				Type: "value_error.toolarge",
			}}})
			return
		}
		h.logger.Error("webhook body read failed", "error", err.Error())
		writeDetail(w, http.StatusInternalServerError, detailInternal)
		return
	}

	result, err := h.processor.Process(r.Context(), core.InboundRequest{
		Source:   h.source,
		Surface:  "http",
		Headers:  flattenHeaders(r.Header),
		Body:     body,
		Metadata: map[string]any{"request_id": r.Header.Get("X-Request-Id"), "remote_addr": r.RemoteAddr},
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !result.Accepted {
		writeDetail(w, http.StatusInternalServerError, detailInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": MessageProcessed})
}

func (h *HTTPHandler) admit(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil || h.limit <= 0 {
		return true
	}
	key := h.clientKey(r)
	decision, err := h.limiter.Allow(r.Context(), key, h.limit, h.window)
	if err != nil {
		h.logger.Warn("webhook ingress limiter unavailable", "error", err.Error())
		return true
	}
	now := h.now()
	ratelimit.WriteHeaders(w.Header(), decision, now)
	if decision.Allowed {
		return true
	}
	h.logger.Warn("webhook ingress throttled", "client", key, "retry_after_ms", decision.RetryAfter(now).Milliseconds())
	writeDetail(w, http.StatusTooManyRequests, detailTooManyRequests)
	return false
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	var schemaErr *SchemaError
	switch {
	case errors.As(err, &schemaErr):
		writeSchemaError(w, schemaErr)
	case core.IsKind(err, core.KindSignatureMismatch):
		writeDetail(w, http.StatusUnauthorized, detailInvalidSignature)
	default:
		h.logger.Error("webhook processing failed", "error", err.Error(), "error_kind", core.KindOf(err).String())
		writeDetail(w, http.StatusInternalServerError, detailInternal)
	}
}

// RemoteIP keys ingress limits by the peer address.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func writeSchemaError(w http.ResponseWriter, err *SchemaError) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Issues})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}
