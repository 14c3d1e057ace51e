package pubsub

import (
	"context"
	"fmt"
)

var (
	ErrShutdown = fmt.Errorf("pubsub already shut down")
)

type IPublisher interface {
	Publish(ctx context.Context, msg *Message) (err error)
	Shutdown(ctx context.Context) (err error)
}

// SubscribeHandler is called for every received message. Returning an error ends the subscription.
type SubscribeHandler = func(ctx context.Context, msg *Message) error

type ISubscriber interface {
	// Subscribe blocks until ctx is done, the handler returns an error or the subscriber is shut down.
	Subscribe(ctx context.Context, handler SubscribeHandler) error
	Shutdown(ctx context.Context) error
}

// PubSub is satisfied by every implementation in this package.
type PubSub interface {
	IPublisher
	ISubscriber
}
