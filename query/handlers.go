package query

import (
	"context"

	"github.com/goliatone/go-messaging/core"
)

type ContactReader interface {
	GetContact(ctx context.Context, id string) (core.Contact, error)
	ListContacts(ctx context.Context, req core.ListContactsRequest) (core.ContactPage, error)
}

type MessageReader interface {
	GetMessage(ctx context.Context, id string) (core.Message, error)
	ListMessages(ctx context.Context, req core.ListMessagesRequest) (core.MessagePage, error)
}

type GetContactQuery struct {
	reader ContactReader
}

func NewGetContactQuery(reader ContactReader) *GetContactQuery {
	return &GetContactQuery{reader: reader}
}

func (q *GetContactQuery) Query(ctx context.Context, msg GetContactMessage) (core.Contact, error) {
	if q == nil || q.reader == nil {
		return core.Contact{}, queryDependencyError("query: contact reader is required")
	}
	return q.reader.GetContact(ctx, msg.ID)
}

type ListContactsQuery struct {
	reader ContactReader
}

func NewListContactsQuery(reader ContactReader) *ListContactsQuery {
	return &ListContactsQuery{reader: reader}
}

func (q *ListContactsQuery) Query(ctx context.Context, msg ListContactsMessage) (core.ContactPage, error) {
	if q == nil || q.reader == nil {
		return core.ContactPage{}, queryDependencyError("query: contact reader is required")
	}
	return q.reader.ListContacts(ctx, msg.Request)
}

type GetMessageQuery struct {
	reader MessageReader
}

func NewGetMessageQuery(reader MessageReader) *GetMessageQuery {
	return &GetMessageQuery{reader: reader}
}

func (q *GetMessageQuery) Query(ctx context.Context, msg GetMessageMessage) (core.Message, error) {
	if q == nil || q.reader == nil {
		return core.Message{}, queryDependencyError("query: message reader is required")
	}
	return q.reader.GetMessage(ctx, msg.ID)
}

type ListMessagesQuery struct {
	reader MessageReader
}

func NewListMessagesQuery(reader MessageReader) *ListMessagesQuery {
	return &ListMessagesQuery{reader: reader}
}

func (q *ListMessagesQuery) Query(ctx context.Context, msg ListMessagesMessage) (core.MessagePage, error) {
	if q == nil || q.reader == nil {
		return core.MessagePage{}, queryDependencyError("query: message reader is required")
	}
	return q.reader.ListMessages(ctx, msg.Request)
}
