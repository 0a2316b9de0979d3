package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-messaging/core"
)

var (
	_ gocmd.Querier[GetContactMessage, core.Contact]       = (*GetContactQuery)(nil)
	_ gocmd.Querier[ListContactsMessage, core.ContactPage] = (*ListContactsQuery)(nil)
	_ gocmd.Querier[GetMessageMessage, core.Message]       = (*GetMessageQuery)(nil)
	_ gocmd.Querier[ListMessagesMessage, core.MessagePage] = (*ListMessagesQuery)(nil)
)
