package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-messaging/core"
)

// MutatingService is the write half of the messaging API.
type MutatingService interface {
	CreateContact(ctx context.Context, req core.CreateContactRequest) (core.Contact, error)
	UpdateContact(ctx context.Context, id string, req core.UpdateContactRequest) (core.Contact, error)
	DeleteContact(ctx context.Context, id string) error
	SendMessage(ctx context.Context, req core.SendMessageRequest) (core.Message, error)
}

type CreateContactCommand struct {
	service MutatingService
}

func NewCreateContactCommand(service MutatingService) *CreateContactCommand {
	return &CreateContactCommand{service: service}
}

func (c *CreateContactCommand) Execute(ctx context.Context, msg CreateContactMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: create contact service is required")
	}
	out, err := c.service.CreateContact(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateContactCommand struct {
	service MutatingService
}

func NewUpdateContactCommand(service MutatingService) *UpdateContactCommand {
	return &UpdateContactCommand{service: service}
}

func (c *UpdateContactCommand) Execute(ctx context.Context, msg UpdateContactMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: update contact service is required")
	}
	out, err := c.service.UpdateContact(ctx, msg.ID, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteContactCommand struct {
	service MutatingService
}

func NewDeleteContactCommand(service MutatingService) *DeleteContactCommand {
	return &DeleteContactCommand{service: service}
}

func (c *DeleteContactCommand) Execute(ctx context.Context, msg DeleteContactMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delete contact service is required")
	}
	return c.service.DeleteContact(ctx, msg.ID)
}

type SendMessageCommand struct {
	service MutatingService
}

func NewSendMessageCommand(service MutatingService) *SendMessageCommand {
	return &SendMessageCommand{service: service}
}

func (c *SendMessageCommand) Execute(ctx context.Context, msg SendMessageMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: send message service is required")
	}
	out, err := c.service.SendMessage(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
