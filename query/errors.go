package query

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-messaging/core"
)

func queryDependencyError(message string) error {
	return core.NewError(core.KindRuntime, message, http.StatusInternalServerError, nil)
}

func queryValidationError(field string, message string) error {
	return core.NewValidationError("query: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	})
}

func queryWrapValidation(err error, message string) error {
	if err == nil {
		return nil
	}
	return core.NewValidationError(message, core.FieldErrors(err, "")...)
}
