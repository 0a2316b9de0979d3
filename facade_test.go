package messaging

import (
	"context"
	"testing"
	"time"

	gocommandadapter "github.com/goliatone/go-messaging/adapters/gocommand"
	messagingcommand "github.com/goliatone/go-messaging/command"
	"github.com/goliatone/go-messaging/core"
	messagingquery "github.com/goliatone/go-messaging/query"
)

type stubFacadeService struct {
	deleted []string
}

func (s *stubFacadeService) CreateContact(_ context.Context, req core.CreateContactRequest) (core.Contact, error) {
	return core.Contact{ID: "c1", Name: req.Name, Phone: req.Phone}, nil
}

func (s *stubFacadeService) UpdateContact(_ context.Context, id string, req core.UpdateContactRequest) (core.Contact, error) {
	return core.Contact{ID: id, Name: req.Name, Phone: req.Phone}, nil
}

func (s *stubFacadeService) DeleteContact(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubFacadeService) SendMessage(_ context.Context, req core.SendMessageRequest) (core.Message, error) {
	return core.Message{ID: "m1", From: req.Sender, To: req.To, Content: req.Content, Status: core.MessageStatusQueued, CreatedAt: time.Now()}, nil
}

func (s *stubFacadeService) GetContact(_ context.Context, id string) (core.Contact, error) {
	return core.Contact{ID: id, Name: "Ada", Phone: "+15550000001"}, nil
}

func (s *stubFacadeService) ListContacts(_ context.Context, req core.ListContactsRequest) (core.ContactPage, error) {
	return core.ContactPage{Contacts: []core.Contact{{ID: "c1"}}, PageNumber: req.PageIndex, PageSize: req.Max}, nil
}

func (s *stubFacadeService) GetMessage(_ context.Context, id string) (core.Message, error) {
	return core.Message{ID: id, Status: core.MessageStatusDelivered}, nil
}

func (s *stubFacadeService) ListMessages(_ context.Context, req core.ListMessagesRequest) (core.MessagePage, error) {
	return core.MessagePage{Messages: []core.Message{}, Page: req.Page, QuantityPerPage: req.Limit}, nil
}

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(&stubFacadeService{})
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	commands := facade.Commands()
	if commands.CreateContact == nil || commands.UpdateContact == nil || commands.DeleteContact == nil || commands.SendMessage == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetContact == nil || queries.ListContacts == nil || queries.GetMessage == nil || queries.ListMessages == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().DeleteContact.Execute(context.Background(), messagingcommand.DeleteContactMessage{ID: "c9"}); err != nil {
		t.Fatalf("execute delete command: %v", err)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != "c9" {
		t.Fatalf("unexpected delete delegation %v", svc.deleted)
	}

	page, err := facade.Queries().ListMessages.Query(context.Background(), messagingquery.ListMessagesMessage{
		Request: core.ListMessagesRequest{Page: 2, Limit: 25},
	})
	if err != nil {
		t.Fatalf("query list messages: %v", err)
	}
	if page.Page != 2 || page.QuantityPerPage != 25 {
		t.Fatalf("unexpected page %#v", page)
	}
}

func TestFacade_SubscribeDispatchesThroughGoCommand(t *testing.T) {
	svc := &stubFacadeService{}
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	subs, err := facade.Subscribe(gocommandadapter.NewRegistryAdapter(nil))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()
	if len(subs) != 8 {
		t.Fatalf("expected 8 subscriptions, got %d", len(subs))
	}

	if err := gocommandadapter.Dispatch(context.Background(), messagingcommand.DeleteContactMessage{ID: "c2"}); err != nil {
		t.Fatalf("dispatch delete: %v", err)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != "c2" {
		t.Fatalf("expected dispatched delete, got %v", svc.deleted)
	}

	if err := gocommandadapter.Dispatch(context.Background(), messagingcommand.DeleteContactMessage{}); !core.IsKind(err, core.KindValidation) {
		t.Fatalf("expected blank id to be rejected before dispatch, got %v", err)
	}

	contact, err := gocommandadapter.Query[messagingquery.GetContactMessage, core.Contact](
		context.Background(),
		messagingquery.GetContactMessage{ID: "c3"},
	)
	if err != nil {
		t.Fatalf("query contact: %v", err)
	}
	if contact.ID != "c3" || contact.Name != "Ada" {
		t.Fatalf("unexpected contact %+v", contact)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}
