package domain

import "context"

// Subscription is a live subscription to a bus topic. Messages is closed
// when the subscription ends.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// EventSubscriber opens subscriptions on the message bus.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// EventPublisher announces changes to calendar events on the message bus.
type EventPublisher interface {
	PublishCreated(ctx context.Context, event Event) error
	PublishUpdated(ctx context.Context, event Event) error
	PublishDeleted(ctx context.Context, event Event) error
}
