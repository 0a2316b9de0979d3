package messaging

import (
	"fmt"

	gocommandadapter "github.com/goliatone/go-messaging/adapters/gocommand"
	messagingcommand "github.com/goliatone/go-messaging/command"
	"github.com/goliatone/go-messaging/core"
	messagingquery "github.com/goliatone/go-messaging/query"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
)

type CommandQueryService interface {
	messagingcommand.MutatingService
	messagingquery.ContactReader
	messagingquery.MessageReader
}

var _ CommandQueryService = (*core.Service)(nil)

type Commands struct {
	CreateContact *messagingcommand.CreateContactCommand
	UpdateContact *messagingcommand.UpdateContactCommand
	DeleteContact *messagingcommand.DeleteContactCommand
	SendMessage   *messagingcommand.SendMessageCommand
}

type Queries struct {
	GetContact   *messagingquery.GetContactQuery
	ListContacts *messagingquery.ListContactsQuery
	GetMessage   *messagingquery.GetMessageQuery
	ListMessages *messagingquery.ListMessagesQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("messaging: command/query service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			CreateContact: messagingcommand.NewCreateContactCommand(service),
			UpdateContact: messagingcommand.NewUpdateContactCommand(service),
			DeleteContact: messagingcommand.NewDeleteContactCommand(service),
			SendMessage:   messagingcommand.NewSendMessageCommand(service),
		},
		queries: Queries{
			GetContact:   messagingquery.NewGetContactQuery(service),
			ListContacts: messagingquery.NewListContactsQuery(service),
			GetMessage:   messagingquery.NewGetMessageQuery(service),
			ListMessages: messagingquery.NewListMessagesQuery(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// Subscribe registers every command and query with the registry and the
// go-command dispatcher. Subscriptions made before a failure are released.
func (f *Facade) Subscribe(adapter *gocommandadapter.RegistryAdapter) ([]commanddispatcher.Subscription, error) {
	if f == nil {
		return nil, fmt.Errorf("messaging: facade is required")
	}
	subs := make([]commanddispatcher.Subscription, 0, 8)
	release := func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return gocommandadapter.RegisterAndSubscribe(adapter, f.commands.CreateContact)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommandadapter.RegisterAndSubscribe(adapter, f.commands.UpdateContact)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommandadapter.RegisterAndSubscribe(adapter, f.commands.DeleteContact)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommandadapter.RegisterAndSubscribe(adapter, f.commands.SendMessage)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommandadapter.RegisterAndSubscribeQuery(adapter, f.queries.GetContact)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommandadapter.RegisterAndSubscribeQuery(adapter, f.queries.ListContacts)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommandadapter.RegisterAndSubscribeQuery(adapter, f.queries.GetMessage)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommandadapter.RegisterAndSubscribeQuery(adapter, f.queries.ListMessages)
		},
	}
	for _, step := range steps {
		sub, err := step()
		if err != nil {
			release()
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
