package webhooks

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/signature"
)

const (
	HeaderAuthorization = "Authorization"
	BearerPrefix        = "Bearer "
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

// HeaderHMACVerifier checks a hex HMAC-SHA256 of the raw body carried in a header.
type HeaderHMACVerifier struct {
	Header string
	Prefix string
	Secret string
}

// NewBearerVerifier reads the signature from "Authorization: Bearer <hex>".
func NewBearerVerifier(secret string) HeaderHMACVerifier {
	return HeaderHMACVerifier{Header: HeaderAuthorization, Prefix: BearerPrefix, Secret: secret}
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	if v.Secret == "" {
		return core.NewError(core.KindSignatureComputation, "webhooks: signature secret is required", http.StatusInternalServerError, nil)
	}
	header := strings.TrimSpace(v.Header)
	if header == "" {
		header = HeaderAuthorization
	}
	value := headerValue(req.Headers, header)
	if value == "" {
		return mismatch("missing " + header + " header")
	}
	candidate := value
	if v.Prefix != "" {
		if !hasPrefixFold(value, v.Prefix) {
			return mismatch("unexpected " + header + " scheme")
		}
		candidate = strings.TrimSpace(value[len(v.Prefix):])
	}
	if candidate == "" {
		return mismatch("empty signature")
	}
	_, err := signature.Verify(req.Body, candidate, v.Secret)
	return err
}

func mismatch(reason string) error {
	return core.NewError(core.KindSignatureMismatch, "Invalid signature.", http.StatusUnauthorized, map[string]any{
		"reason": reason,
	})
}

func hasPrefixFold(value, prefix string) bool {
	return len(value) >= len(prefix) && strings.EqualFold(value[:len(prefix)], prefix)
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	if value, ok := headers[key]; ok {
		return strings.TrimSpace(value)
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var _ Verifier = HeaderHMACVerifier{}
