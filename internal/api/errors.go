package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/encodenode/internal/ffmpeg"
	"github.com/smazurov/encodenode/internal/jobs"
	"github.com/smazurov/encodenode/internal/preview"
	"github.com/smazurov/encodenode/internal/process"
)

// toHTTPError maps service errors onto huma status errors. Unknown errors
// become 500s with the message preserved.
func (s *Server) toHTTPError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var cfgErr *ffmpeg.ConfigError
	var jobErr *jobs.Error
	var spawnErr *process.SpawnError

	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.As(err, &cfgErr):
		return huma.Error422UnprocessableEntity(msg, &huma.ErrorDetail{
			Message:  cfgErr.Message,
			Location: "body." + cfgErr.Field,
			Value:    cfgErr.Value,
		})
	case errors.As(err, &jobErr):
		if jobErr.Code == jobs.ErrCodeBusy {
			return huma.Error409Conflict(jobErr.Error())
		}
		return huma.Error400BadRequest(jobErr.Error())
	case errors.Is(err, preview.ErrIncomplete):
		return huma.Error404NotFound("No preview frame available yet")
	case errors.As(err, &spawnErr):
		return huma.NewError(http.StatusBadGateway, msg, err)
	default:
		s.logger.Error(msg, "error", err)
		return huma.Error500InternalServerError(msg, err)
	}
}
