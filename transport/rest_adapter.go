package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
)

const (
	KindREST             = "rest"
	HeaderIdempotencyKey = "Idempotency-Key"

	defaultRESTClientTimeout             = 30 * time.Second
	defaultRESTResponseBodyLimit   int64 = 10 << 20
	defaultRESTUserAgent                 = "go-messaging"
	defaultRESTAccept                    = "application/json"
	restMetadataDurationMillisKey        = "duration_ms"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter performs one HTTP exchange against the messaging API. It reports
// transport failures only. Status classification belongs to Classify.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client: client,
		DefaultHeaders: map[string]string{
			"Accept":     defaultRESTAccept,
			"User-Agent": defaultRESTUserAgent,
		},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, transportError("transport: rest adapter requires an http client",
			core.KindRuntime, http.StatusInternalServerError, map[string]any{"adapter": KindREST})
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := a.newRequest(ctx, req)
	if err != nil {
		return core.TransportResponse{}, err
	}
	target := map[string]any{"adapter": KindREST, "method": httpReq.Method, "url": httpReq.URL.String()}

	started := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(err, core.KindTransient,
			"transport: execute http request", http.StatusBadGateway, target)
	}
	defer httpRes.Body.Close()

	body, err := a.readBody(httpRes, req.MaxResponseBodyBytes)
	if err != nil {
		return core.TransportResponse{}, err
	}
	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Metadata: map[string]any{
			"kind":                        KindREST,
			restMetadataDurationMillisKey: time.Since(started).Milliseconds(),
		},
	}, nil
}

func (a *RESTAdapter) newRequest(ctx context.Context, req core.TransportRequest) (*http.Request, error) {
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return nil, transportError("transport: request url is required",
			core.KindRuntime, http.StatusInternalServerError, map[string]any{"adapter": KindREST})
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, transportWrapError(err, core.KindRuntime, "transport: invalid request url",
			http.StatusInternalServerError, map[string]any{"adapter": KindREST, "url": rawURL})
	}
	if len(req.Query) > 0 {
		values := target.Query()
		for key, value := range req.Query {
			if key = strings.TrimSpace(key); key != "" {
				values.Set(key, strings.TrimSpace(value))
			}
		}
		target.RawQuery = values.Encode()
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, transportWrapError(err, core.KindRuntime, "transport: create http request",
			http.StatusInternalServerError, map[string]any{"adapter": KindREST, "method": method, "url": target.String()})
	}
	setHeaders(httpReq.Header, a.DefaultHeaders)
	setHeaders(httpReq.Header, req.Headers)
	if key := strings.TrimSpace(req.Idempotency); key != "" {
		httpReq.Header.Set(HeaderIdempotencyKey, key)
	}
	return httpReq, nil
}

// readBody reads at most limit bytes; a longer body is an API error.
func (a *RESTAdapter) readBody(res *http.Response, requestLimit int64) ([]byte, error) {
	limit := defaultRESTResponseBodyLimit
	switch {
	case requestLimit > 0:
		limit = requestLimit
	case a.MaxResponseBodyBytes > 0:
		limit = a.MaxResponseBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, transportWrapError(err, core.KindTransient, "transport: read response body",
			http.StatusBadGateway, map[string]any{"adapter": KindREST, "status_code": res.StatusCode})
	}
	if int64(len(body)) > limit {
		return nil, transportError(fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit),
			core.KindAPI, http.StatusBadGateway,
			map[string]any{"adapter": KindREST, "status_code": res.StatusCode, "response_limit_b": limit})
	}
	return body, nil
}

func setHeaders(dst http.Header, src map[string]string) {
	for key, value := range src {
		if key = strings.TrimSpace(key); key != "" {
			dst.Set(key, strings.TrimSpace(value))
		}
	}
}

// flattenHeaders joins repeated header values with commas.
func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
