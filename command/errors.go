package command

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-messaging/core"
)

func commandDependencyError(message string) error {
	return core.NewError(core.KindRuntime, message, http.StatusInternalServerError, nil)
}

func commandValidationError(field string, message string) error {
	return core.NewValidationError("command: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	})
}

func commandWrapValidation(err error, message string) error {
	if err == nil {
		return nil
	}
	return core.NewValidationError(message, core.FieldErrors(err, "")...)
}
