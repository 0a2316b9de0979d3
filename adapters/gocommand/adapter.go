// Package gocommand exposes messaging commands and queries through the
// go-command registry and dispatcher.
package gocommand

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-messaging/core"
)

func runtimeError(message string) error {
	return core.NewError(core.KindRuntime, "gocommand: "+message, http.StatusInternalServerError, nil)
}

// ValidateMessageContract requires a non blank Type() and runs Validate()
// when the message has one. Every failure is KindValidation.
func ValidateMessageContract(msg any) error {
	typed, ok := msg.(command.Message)
	if !ok {
		return core.NewError(core.KindValidation, "gocommand: message must implement Type() string", 0, nil)
	}
	name := strings.TrimSpace(typed.Type())
	if name == "" {
		return core.NewError(core.KindValidation, "gocommand: message type is required", 0, nil)
	}
	err := command.ValidateMessage(msg)
	switch {
	case err == nil:
		return nil
	case core.IsKind(err, core.KindValidation):
		return err
	default:
		return core.WrapError(err, core.KindValidation, "gocommand: invalid "+name, 0, nil)
	}
}

// RegistryAdapter wraps a *command.Registry. Queries share the command table
// since go-command resolves handlers by message type.
type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) ready() error {
	if a == nil || a.registry == nil {
		return runtimeError("registry is not configured")
	}
	return nil
}

func (a *RegistryAdapter) RegisterCommand(handler any) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) RegisterQuery(handler any) error {
	return a.RegisterCommand(handler)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors every registered command into a go-job queue
// registry so the webhook worker can run them too.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return runtimeError("queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	return a.ready() == nil && a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.Initialize()
}

// Dispatch validates msg before handing it to the global dispatcher.
func Dispatch[T any](ctx context.Context, msg T) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessageContract(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RegisterAndSubscribe subscribes cmd on the dispatcher and registers it. The
// subscription is released when registration fails.
func RegisterAndSubscribe[T any](adapter *RegistryAdapter, cmd command.Commander[T], opts ...runner.Option) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, runtimeError("command is required")
	}
	return subscribe(adapter, cmd, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeCommand(cmd, opts...)
	})
}

func RegisterAndSubscribeQuery[T any, R any](adapter *RegistryAdapter, qry command.Querier[T, R], opts ...runner.Option) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, runtimeError("query is required")
	}
	return subscribe(adapter, qry, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeQuery(qry, opts...)
	})
}

func subscribe(adapter *RegistryAdapter, handler any, attach func() commanddispatcher.Subscription) (commanddispatcher.Subscription, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	sub := attach()
	if err := adapter.RegisterCommand(handler); err != nil {
		if sub != nil {
			sub.Unsubscribe()
		}
		return nil, err
	}
	return sub, nil
}
