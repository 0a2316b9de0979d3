package webhooks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-messaging/core"
)

// SchemaIssue is one entry of a 422 detail list.
type SchemaIssue struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// SchemaError reports a body that does not match the delivery event schema.
type SchemaError struct {
	Issues []SchemaIssue
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, strings.Join(issue.Loc, ".")+": "+issue.Msg)
	}
	return "webhooks: invalid event: " + strings.Join(parts, "; ")
}

// DecodeEvent parses and validates a delivery status event body.
func DecodeEvent(body []byte) (core.DeliveryEvent, error) {
	var event core.DeliveryEvent
	decoder := json.NewDecoder(bytes.NewReader(body))
	if err := decoder.Decode(&event); err != nil {
		return core.DeliveryEvent{}, decodeSchemaError(err)
	}
	if decoder.More() {
		return core.DeliveryEvent{}, &SchemaError{Issues: []SchemaIssue{{
			Loc:  []string{"body"},
			Msg:  "unexpected data after JSON object",
			Type: "value_error.jsondecode",
		}}}
	}
	if err := event.Validate(); err != nil {
		fields := core.FieldErrors(err, "")
		issues := make([]SchemaIssue, 0, len(fields))
		for _, field := range fields {
			issues = append(issues, SchemaIssue{
				Loc:  []string{"body", field.Field},
				Msg:  field.Message,
				Type: "value_error",
			})
		}
		return core.DeliveryEvent{}, &SchemaError{Issues: issues}
	}
	return event, nil
}

func decodeSchemaError(err error) *SchemaError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		loc := []string{"body"}
		if typeErr.Field != "" {
			loc = append(loc, strings.Split(typeErr.Field, ".")...)
		}
		return &SchemaError{Issues: []SchemaIssue{{
			Loc:  loc,
			Msg:  fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
			Type: "type_error",
		}}}
	}
	return &SchemaError{Issues: []SchemaIssue{{
		Loc:  []string{"body"},
		Msg:  "invalid JSON: " + err.Error(),
		Type: "value_error.jsondecode",
	}}}
}
