package command

import (
	"strings"

	"github.com/goliatone/go-messaging/core"
)

const (
	TypeCreateContact = "messaging.command.contact.create"
	TypeUpdateContact = "messaging.command.contact.update"
	TypeDeleteContact = "messaging.command.contact.delete"
	TypeSendMessage   = "messaging.command.message.send"
)

type CreateContactMessage struct {
	Request core.CreateContactRequest
}

func (CreateContactMessage) Type() string { return TypeCreateContact }

func (m CreateContactMessage) Validate() error {
	return commandWrapValidation(m.Request.Validate(), "command: invalid contact")
}

type UpdateContactMessage struct {
	ID      string
	Request core.UpdateContactRequest
}

func (UpdateContactMessage) Type() string { return TypeUpdateContact }

func (m UpdateContactMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return commandValidationError("id", "contact id is required")
	}
	return commandWrapValidation(m.Request.Validate(), "command: invalid contact")
}

type DeleteContactMessage struct {
	ID string
}

func (DeleteContactMessage) Type() string { return TypeDeleteContact }

func (m DeleteContactMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return commandValidationError("id", "contact id is required")
	}
	return nil
}

type SendMessageMessage struct {
	Request core.SendMessageRequest
}

func (SendMessageMessage) Type() string { return TypeSendMessage }

func (m SendMessageMessage) Validate() error {
	return commandWrapValidation(m.Request.Validate(), "command: invalid message")
}
