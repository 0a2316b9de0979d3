package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind is the discriminant carried as the text code of every messaging error.
type ErrorKind string

const (
	KindUnauthorized         ErrorKind = "MESSAGING_UNAUTHORIZED"
	KindNotFound             ErrorKind = "MESSAGING_NOT_FOUND"
	KindRateLimit            ErrorKind = "MESSAGING_RATE_LIMITED"
	KindServerError          ErrorKind = "MESSAGING_SERVER_ERROR"
	KindTransient            ErrorKind = "MESSAGING_TRANSIENT"
	KindValidation           ErrorKind = "MESSAGING_VALIDATION"
	KindSignatureMismatch    ErrorKind = "MESSAGING_SIGNATURE_MISMATCH"
	KindSignatureComputation ErrorKind = "MESSAGING_SIGNATURE_COMPUTATION"
	KindRetriesExhausted     ErrorKind = "MESSAGING_RETRIES_EXHAUSTED"
	KindAPI                  ErrorKind = "MESSAGING_API_ERROR"
	KindRuntime              ErrorKind = "MESSAGING_RUNTIME_ERROR"
)

const unexpectedErrorPrefix = "An unexpected error occurred: "

var allKinds = []ErrorKind{
	KindUnauthorized,
	KindNotFound,
	KindRateLimit,
	KindServerError,
	KindTransient,
	KindValidation,
	KindSignatureMismatch,
	KindSignatureComputation,
	KindRetriesExhausted,
	KindAPI,
	KindRuntime,
}

func (k ErrorKind) String() string {
	return string(k)
}

// Valid reports whether k belongs to the closed kind set.
func (k ErrorKind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k ErrorKind) Category() goerrors.Category {
	switch k {
	case KindUnauthorized, KindSignatureMismatch:
		return goerrors.CategoryAuth
	case KindNotFound:
		return goerrors.CategoryNotFound
	case KindRateLimit:
		return goerrors.CategoryRateLimit
	case KindServerError, KindTransient, KindRetriesExhausted, KindAPI:
		return goerrors.CategoryExternal
	case KindValidation:
		return goerrors.CategoryValidation
	default:
		return goerrors.CategoryInternal
	}
}

// DefaultStatus is the HTTP code used when the error does not carry an upstream status.
func (k ErrorKind) DefaultStatus() int {
	switch k {
	case KindUnauthorized, KindSignatureMismatch:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindValidation:
		return http.StatusBadRequest
	case KindServerError:
		return http.StatusInternalServerError
	case KindTransient, KindRetriesExhausted, KindAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewError builds a kind tagged envelope. status <= 0 falls back to the kind default.
func NewError(kind ErrorKind, message string, status int, metadata map[string]any) *goerrors.Error {
	if !kind.Valid() {
		kind = KindRuntime
	}
	if status <= 0 {
		status = kind.DefaultStatus()
	}
	err := goerrors.New(strings.TrimSpace(message), kind.Category()).
		WithCode(status).
		WithTextCode(kind.String())
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// WrapError builds a kind tagged envelope that keeps source reachable through errors.Is/As.
func WrapError(source error, kind ErrorKind, message string, status int, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return NewError(kind, message, status, metadata)
	}
	if !kind.Valid() {
		kind = KindRuntime
	}
	if status <= 0 {
		status = kind.DefaultStatus()
	}
	err := goerrors.Wrap(source, kind.Category(), strings.TrimSpace(message)).
		WithCode(status).
		WithTextCode(kind.String())
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// NewValidationError reports field level failures as a KindValidation envelope.
func NewValidationError(message string, fields ...goerrors.FieldError) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "validation failed"
	}
	return goerrors.NewValidation(message, fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(KindValidation.String()).
		WithSeverity(goerrors.SeverityError)
}

// NewRuntimeError wraps an unclassified failure, preserving its message.
func NewRuntimeError(source error) *goerrors.Error {
	if source == nil {
		return nil
	}
	return WrapError(source, KindRuntime, unexpectedErrorPrefix+source.Error(), http.StatusInternalServerError, nil)
}

// KindOf returns the discriminant of err. Errors outside the taxonomy report KindRuntime.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		kind := ErrorKind(strings.TrimSpace(rich.TextCode))
		if kind.Valid() {
			return kind
		}
	}
	return KindRuntime
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusCodeOf returns the HTTP status carried by err, or 0 when none is known.
func StatusCodeOf(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		return rich.Code
	}
	return 0
}

// MapError is the default ErrorMapper. Envelopes pass through with missing fields
// completed; anything else becomes a KindRuntime error.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		return ensureErrorEnvelope(rich)
	}
	return NewRuntimeError(err)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	kind := ErrorKind(strings.TrimSpace(err.TextCode))
	if !kind.Valid() {
		kind = kindForCategory(err.Category)
		err.TextCode = kind.String()
	}
	if err.Code == 0 {
		err.Code = kind.DefaultStatus()
	}
	if kind == KindRuntime && strings.TrimSpace(err.Message) == "" {
		err.Message = strings.TrimSuffix(unexpectedErrorPrefix, ": ")
	}
	return err
}

func kindForCategory(category goerrors.Category) ErrorKind {
	switch category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return KindUnauthorized
	case goerrors.CategoryNotFound:
		return KindNotFound
	case goerrors.CategoryRateLimit:
		return KindRateLimit
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return KindValidation
	case goerrors.CategoryExternal:
		return KindAPI
	default:
		return KindRuntime
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

var errNilService = errors.New("core: service is not configured")
