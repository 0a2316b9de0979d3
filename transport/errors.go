package transport

import "github.com/goliatone/go-messaging/core"

// transportError builds a classified error.
func transportError(message string, kind core.ErrorKind, code int, metadata map[string]any) error {
	return core.NewError(kind, message, code, metadata)
}

// transportWrapError wraps cause as a classified error. cause may be nil.
func transportWrapError(cause error, kind core.ErrorKind, message string, code int, metadata map[string]any) error {
	if cause == nil {
		return core.NewError(kind, message, code, metadata)
	}
	return core.WrapError(cause, kind, message, code, metadata)
}
