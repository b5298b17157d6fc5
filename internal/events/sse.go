package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels
// This is needed for SSE integration where Huma expects a channel-based select loop.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full (non-blocking)
		}
	})
}

// SubscribeJobs subscribes ch to every job-related event, optionally
// filtered to one job. The returned function unsubscribes all of them.
func SubscribeJobs(bus *Bus, jobID string, ch chan<- any) func() {
	forward := func(id string, e any) {
		if jobID != "" && id != jobID {
			return
		}
		select {
		case ch <- e:
		default:
		}
	}
	unsubs := []func(){
		event.Subscribe(bus.dispatcher, func(e JobCreatedEvent) { forward(e.JobID, e) }),
		event.Subscribe(bus.dispatcher, func(e JobStateChangedEvent) { forward(e.JobID, e) }),
		event.Subscribe(bus.dispatcher, func(e JobProgressEvent) { forward(e.JobID, e) }),
		event.Subscribe(bus.dispatcher, func(e JobFinishedEvent) { forward(e.JobID, e) }),
		event.Subscribe(bus.dispatcher, func(e PreviewUpdatedEvent) { forward(e.JobID, e) }),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
