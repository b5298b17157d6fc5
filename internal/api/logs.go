package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/encodenode/internal/api/models"
	"github.com/smazurov/encodenode/internal/events"
	"github.com/smazurov/encodenode/internal/logging"
)

// filterLogs keeps entries matching module and at or above level, then
// trims to the newest limit entries. A zero limit keeps everything.
func filterLogs(entries []logging.LogEntry, module, level string, limit int) []logging.LogEntry {
	minLevel := slog.LevelDebug
	if level != "" {
		_ = minLevel.UnmarshalText([]byte(level))
	}

	out := make([]logging.LogEntry, 0, len(entries))
	for _, e := range entries {
		if module != "" && !strings.EqualFold(e.Module, module) {
			continue
		}
		var l slog.Level
		if err := l.UnmarshalText([]byte(e.Level)); err == nil && l < minLevel {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// registerLogRoutes registers the log history and streaming endpoints.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Log History",
		Description: "Recent log entries from the in-memory history",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *models.LogsInput) (*models.LogsResponse, error) {
		var entries []logging.LogEntry
		if buffer := logging.GetBuffer(); buffer != nil {
			entries = buffer.ReadAll()
		}
		entries = filterLogs(entries, input.Module, input.Level, input.Limit)
		return &models.LogsResponse{Body: models.LogsData{Entries: entries, Count: len(entries)}}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing logged in between is lost.
		// An entry written during the replay may be delivered twice.
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				event := events.LogEntryEvent{
					Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
					Level:      entry.Level,
					Module:     entry.Module,
					Message:    entry.Message,
					Attributes: entry.Attributes,
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
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
