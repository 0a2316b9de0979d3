package core

import (
	"context"
	"encoding/json"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type (
	Logger         = glog.Logger
	LoggerProvider = glog.LoggerProvider
	FieldsLogger   = glog.FieldsLogger
)

// MetricsRecorder receives dotted metric names such as
// messaging.send_message.total. Implementations decide how to export them.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// TransportRequest is one outbound HTTP exchange after auth headers have been
// applied.
type TransportRequest struct {
	Method      string
	URL         string
	Headers     map[string]string
	Query       map[string]string
	Body        []byte
	Metadata    map[string]any
	Timeout     time.Duration
	Idempotency string

	// MaxResponseBodyBytes caps the bytes read from the response. Zero uses
	// the adapter default.
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// TransportAdapter performs a single HTTP exchange. A non-2xx status is a
// response, not an error.
type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// ExecuteRequest is an API call relative to Config.BaseURL. Body is encoded
// as JSON when non-nil.
type ExecuteRequest struct {
	Method string
	Path   string
	Body   any
	Query  map[string]string
}

type ExecuteResult struct {
	StatusCode int
	Headers    map[string]string
	Body       json.RawMessage
	Attempts   int
}

// Executor sends authenticated API calls and classifies their outcome.
type Executor interface {
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
}

// ExecutorFactory builds the Executor used by a Service from its resolved config.
type ExecutorFactory func(cfg Config, logger Logger) (Executor, error)

// RateLimitKey identifies one quota bucket on one API host.
type RateLimitKey struct {
	Host   string
	Bucket string
}

// ResponseMeta is the part of a response a RateLimitPolicy looks at.
type ResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res ResponseMeta) error
}

// InboundRequest is a received webhook call, decoupled from net/http.
type InboundRequest struct {
	Source   string
	Surface  string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type ContactsService interface {
	CreateContact(ctx context.Context, req CreateContactRequest) (Contact, error)
	ListContacts(ctx context.Context, req ListContactsRequest) (ContactPage, error)
	GetContact(ctx context.Context, id string) (Contact, error)
	UpdateContact(ctx context.Context, id string, req UpdateContactRequest) (Contact, error)
	DeleteContact(ctx context.Context, id string) error
}

type MessagesService interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (Message, error)
	ListMessages(ctx context.Context, req ListMessagesRequest) (MessagePage, error)
	GetMessage(ctx context.Context, id string) (Message, error)
}

// MessagingService is the full API surface implemented by *Service.
type MessagingService interface {
	ContactsService
	MessagesService
}
