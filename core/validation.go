package core

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var phonePattern = regexp.MustCompile(`^\+\d+$`)

var (
	phoneFormatRule = validation.Match(phonePattern).
			Error("phone numbers must be a '+' followed by digits")
	contactPhoneLengthRule = validation.RuneLength(10, 15).
				Error("phone numbers must be between 10 and 15 characters")
	contactNameRule = validation.RuneLength(1, 50).
			Error("name must be between 1 and 50 characters")
	messageContentRule = validation.RuneLength(1, 160).
				Error("content must be between 1 and 160 characters")
	messageStatusRule = validation.In(MessageStatusQueued, MessageStatusDelivered, MessageStatusFailed).
				Error("status must be one of queued, delivered, failed")
)

func (r CreateContactRequest) Validate() error {
	return validateContactFields(r.Name, r.Phone)
}

func (r UpdateContactRequest) Validate() error {
	return validateContactFields(r.Name, r.Phone)
}

func validateContactFields(name, phone string) error {
	return validation.Errors{
		"name":  validation.Validate(name, validation.Required, contactNameRule),
		"phone": validation.Validate(phone, validation.Required, phoneFormatRule, contactPhoneLengthRule),
	}.Filter()
}

func (r ListContactsRequest) Validate() error {
	return validation.Errors{
		"pageIndex": validation.Validate(r.PageIndex, validation.Min(1)),
		"max":       validation.Validate(r.Max, validation.Min(1), validation.Max(MaxPageSize)),
	}.Filter()
}

func (r SendMessageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.To, validation.Required, phoneFormatRule),
		validation.Field(&r.Content, validation.Required, messageContentRule),
		validation.Field(&r.Sender, validation.Required, phoneFormatRule),
	)
}

func (r ListMessagesRequest) Validate() error {
	return validation.Errors{
		"page":  validation.Validate(r.Page, validation.Min(1)),
		"limit": validation.Validate(r.Limit, validation.Min(1), validation.Max(MaxPageSize)),
	}.Filter()
}

func (c Contact) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required),
	)
}

func (p ContactPage) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Contacts, validation.NotNil),
		validation.Field(&p.PageNumber, validation.Min(0)),
		validation.Field(&p.PageSize, validation.Min(0)),
	)
}

func (m Message) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required),
		validation.Field(&m.Status, validation.Required, messageStatusRule),
		validation.Field(&m.CreatedAt, validation.Required),
	)
}

func (p MessagePage) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Messages, validation.NotNil),
		validation.Field(&p.Page, validation.Min(0)),
		validation.Field(&p.QuantityPerPage, validation.Min(0)),
	)
}

// Validate enforces the webhook body schema. deliveredAt is free text and
// DeliveredTime reports whether it parses.
func (e DeliveryEvent) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.ID, validation.Required),
		validation.Field(&e.Status, validation.Required, messageStatusRule),
	)
}

// FieldErrors flattens an ozzo validation error into sorted field errors. prefix,
// when set, is joined to every field name with a dot.
func FieldErrors(err error, prefix string) []goerrors.FieldError {
	if err == nil {
		return nil
	}
	out := make([]goerrors.FieldError, 0)
	collectFieldErrors(err, strings.TrimSpace(prefix), &out)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Field < out[j].Field
	})
	return out
}

func collectFieldErrors(err error, prefix string, out *[]goerrors.FieldError) {
	var fields validation.Errors
	if errors.As(err, &fields) {
		for name, fieldErr := range fields {
			if fieldErr == nil {
				continue
			}
			collectFieldErrors(fieldErr, joinFieldPath(prefix, name), out)
		}
		return
	}
	field := prefix
	if field == "" {
		field = "body"
	}
	*out = append(*out, goerrors.FieldError{Field: field, Message: err.Error()})
}

func joinFieldPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// RequestValidationError converts request rule failures into a KindValidation error.
func RequestValidationError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return NewValidationError(fmt.Sprintf("%s: invalid request", operation), FieldErrors(err, "")...)
}

// ResponseValidationError converts a malformed API response into a KindValidation error.
func ResponseValidationError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return NewValidationError(fmt.Sprintf("%s: invalid response", operation), FieldErrors(err, "response")...)
}
