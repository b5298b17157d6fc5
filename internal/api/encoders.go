package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/encodenode/internal/api/models"
	"github.com/smazurov/encodenode/internal/encoders"
)

func encoderInfo(e encoders.Encoder) models.EncoderInfo {
	return models.EncoderInfo{
		Name:        e.Name,
		Family:      e.Family,
		Codec:       e.Codec,
		Description: encoders.Describe(e.Family),
		HWAccel:     e.Family.IsHardware(),
	}
}

// registerEncoderRoutes registers encoder discovery endpoints.
func (s *Server) registerEncoderRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-encoders",
		Method:      http.MethodGet,
		Path:        "/api/encoders",
		Summary:     "List Encoders",
		Description: "List the video encoders confirmed working on this host, best first. Stream copy is always listed last.",
		Tags:        []string{"encoders"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.EncodersResponse, error) {
		registry := s.jobs.Registry()
		list := registry.Encoders()

		data := models.EncoderData{Encoders: make([]models.EncoderInfo, 0, len(list))}
		for _, e := range list {
			data.Encoders = append(data.Encoders, encoderInfo(e))
		}
		data.Count = len(data.Encoders)
		return &models.EncodersResponse{Body: data}, nil
	})
}
