package xcomm

import (
	"context"
)

// Handler processes a single delivered message.
type Handler func(ctx context.Context, msg *Message) error

// Middleware composes processing concerns around a Handler.
type Middleware func(next Handler) Handler

// Subscription is a running push consumer started by Subscribe.
type Subscription interface {
	Key() Key
	Close() error
}

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// API is the communicator surface shared by producers and subscribers.
type API interface {
	NewMessage() *MessageBuilder
	Register(descriptor any) (*Receiver, error)
	Subscribe(ctx context.Context, descriptor any, handler Handler) (Subscription, error)
	Send(ctx context.Context, msg *Message) error
	SendTo(ctx context.Context, descriptor any, msg *Message) error
	Topics() []Key
	Subscribers(descriptor any) int
	Metrics() Metrics
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
	Close(ctx context.Context) error
}

var (
	_ API           = (*Communicator)(nil)
	_ HealthChecker = (*Communicator)(nil)
)
