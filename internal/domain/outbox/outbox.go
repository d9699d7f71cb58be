package outbox

import "context"

// Event is a named domain event carried across context boundaries.
type Event interface {
	EventName() string
}

// Handler consumes a published event. Errors are logged by the bus, never
// surfaced to the publisher.
type Handler func(ctx context.Context, e Event) error

// Publisher enqueues events for detached, post-commit delivery.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers by event name.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
