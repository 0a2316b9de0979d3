// Package messaging is a client for the messaging and contacts REST API.
//
// NewClient resolves configuration, builds the resilient request executor and
// returns a core.Service. The webhooks package hosts the receiving side.
package messaging

import (
	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/transport"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Contact = core.Contact
type ContactPage = core.ContactPage
type CreateContactRequest = core.CreateContactRequest
type UpdateContactRequest = core.UpdateContactRequest
type ListContactsRequest = core.ListContactsRequest

type Message = core.Message
type MessagePage = core.MessagePage
type MessageStatus = core.MessageStatus
type SendMessageRequest = core.SendMessageRequest
type ListMessagesRequest = core.ListMessagesRequest

type ErrorKind = core.ErrorKind

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithConfigValidator = core.WithConfigValidator
	WithExecutor        = core.WithExecutor
	WithExecutorFactory = core.WithExecutorFactory
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewClient builds a Service backed by the REST executor. Executor options
// apply only when no explicit executor or factory is passed in opts.
func NewClient(cfg Config, opts []Option, executorOpts ...transport.ExecutorOption) (*Service, error) {
	all := make([]Option, 0, len(opts)+1)
	all = append(all, core.WithExecutorFactory(transport.NewExecutorFactory(executorOpts...)))
	all = append(all, opts...)
	return core.NewService(cfg, all...)
}

// NewService builds a Service without a default executor.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
