package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/encodenode/internal/logging"
)

// HTTPLoggingMiddleware logs HTTP requests with a level chosen from the
// status code. Polling endpoints (preview frames, job status) and CORS
// preflight log at debug.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	method := ctx.Method()
	path := ctx.URL().Path

	logAttrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if query := ctx.URL().RawQuery; query != "" {
		// Never log SSE credentials.
		if strings.Contains(query, "auth=") {
			query = "[redacted]"
		}
		logAttrs = append(logAttrs, slog.String("query", query))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		logAttrs = append(logAttrs, slog.String("user_agent", ua))
	}

	next(ctx)

	status := ctx.Status()
	logAttrs = append(logAttrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)

	message := "HTTP request completed"
	switch {
	case status >= 500:
		logger.LogAttrs(ctx.Context(), slog.LevelError, message, logAttrs...)
	case status >= 400:
		logger.LogAttrs(ctx.Context(), slog.LevelWarn, message, logAttrs...)
	case method == http.MethodOptions, isPollingPath(method, path):
		logger.LogAttrs(ctx.Context(), slog.LevelDebug, message, logAttrs...)
	default:
		logger.LogAttrs(ctx.Context(), slog.LevelInfo, message, logAttrs...)
	}
}

func isPollingPath(method, path string) bool {
	if method != http.MethodGet {
		return false
	}
	return strings.HasSuffix(path, "/preview") || strings.HasPrefix(path, "/api/jobs")
}
