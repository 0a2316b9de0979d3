package query

import (
	"strings"

	"github.com/goliatone/go-messaging/core"
)

const (
	TypeGetContact   = "messaging.query.contact.get"
	TypeListContacts = "messaging.query.contact.list"
	TypeGetMessage   = "messaging.query.message.get"
	TypeListMessages = "messaging.query.message.list"
)

type GetContactMessage struct {
	ID string
}

func (GetContactMessage) Type() string { return TypeGetContact }

func (m GetContactMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return queryValidationError("id", "contact id is required")
	}
	return nil
}

type ListContactsMessage struct {
	Request core.ListContactsRequest
}

func (ListContactsMessage) Type() string { return TypeListContacts }

func (m ListContactsMessage) Validate() error {
	return queryWrapValidation(m.Request.Validate(), "query: invalid contact listing")
}

type GetMessageMessage struct {
	ID string
}

func (GetMessageMessage) Type() string { return TypeGetMessage }

func (m GetMessageMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return queryValidationError("id", "message id is required")
	}
	return nil
}

type ListMessagesMessage struct {
	Request core.ListMessagesRequest
}

func (ListMessagesMessage) Type() string { return TypeListMessages }

func (m ListMessagesMessage) Validate() error {
	return queryWrapValidation(m.Request.Validate(), "query: invalid message listing")
}
