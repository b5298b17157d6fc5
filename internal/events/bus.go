package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(JobCreatedEvent{...})
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case JobCreatedEvent:
		event.Publish(b.dispatcher, e)
	case JobStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case JobProgressEvent:
		event.Publish(b.dispatcher, e)
	case JobFinishedEvent:
		event.Publish(b.dispatcher, e)
	case PreviewUpdatedEvent:
		event.Publish(b.dispatcher, e)
	case EncodersProbedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects the events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e JobFinishedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(JobCreatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(JobStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(JobProgressEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(JobFinishedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PreviewUpdatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(EncodersProbedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
