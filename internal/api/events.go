package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/encodenode/internal/api/models"
	"github.com/smazurov/encodenode/internal/events"
)

// eventTypes maps SSE event names to payloads for the OpenAPI document.
var eventTypes = map[string]any{
	"job-created":       events.JobCreatedEvent{},
	"job-state-changed": events.JobStateChangedEvent{},
	"job-progress":      events.JobProgressEvent{},
	"job-finished":      events.JobFinishedEvent{},
	"preview-updated":   events.PreviewUpdatedEvent{},
	"encoders-probed":   events.EncodersProbedEvent{},
}

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time job lifecycle, progress and preview events. Pass job_id to follow a single job.",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, eventTypes, func(ctx context.Context, input *models.EventsInput, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribe := events.SubscribeJobs(s.eventBus, input.JobID, eventCh)
		defer unsubscribe()
		if input.JobID == "" {
			unsubProbe := events.SubscribeToChannel[events.EncodersProbedEvent](s.eventBus, eventCh)
			defer unsubProbe()
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
