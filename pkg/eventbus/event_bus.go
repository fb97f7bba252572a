// Package eventbus publishes run lifecycle events for external consumers.
// The core never consumes events to drive execution; publication is an
// observability and integration surface only.
package eventbus

import (
	"context"

	"github.com/quorumlabs/warden/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler)
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
