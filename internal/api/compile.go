package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/encodenode/internal/api/models"
	"github.com/smazurov/encodenode/internal/bitrate"
	"github.com/smazurov/encodenode/internal/encoders"
	"github.com/smazurov/encodenode/internal/ffmpeg"
	"github.com/smazurov/encodenode/internal/jobs"
)

// Placeholders shown in compiled commands.
const (
	placeholderInput  = "INPUT"
	placeholderOutput = "OUTPUT"
)

func createParams(s models.EncodeSettings) jobs.CreateParams {
	return jobs.CreateParams{
		Encoder:     s.Encoder,
		FrameRate:   s.FrameRate,
		Height:      s.Height,
		RateControl: ffmpeg.RateControl(s.RateControl),
		RateValue:   s.RateValue,
		Audio:       s.Audio,
	}
}

// registerCompileRoutes registers the dry-run compile endpoint.
func (s *Server) registerCompileRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "compile-encode",
		Method:      http.MethodPost,
		Path:        "/api/compile",
		Summary:     "Compile Encode",
		Description: "Compile encode settings into engine arguments without starting anything",
		Tags:        []string{"jobs"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 422},
	}, func(_ context.Context, input *models.CompileRequest) (*models.CompileResponse, error) {
		cfg, directive, err := s.jobs.Compile(createParams(input.Body))
		if err != nil {
			return nil, s.toHTTPError(err, "Invalid encode settings")
		}

		inv := ffmpeg.BuildCommand(s.engine(), directive, placeholderInput, placeholderOutput, "")
		data := models.CompileData{
			Encoder: encoderInfo(cfg.Video),
			Known:   cfg.Video.Known,
			Args:    directive.Args(),
			Command: inv.String(),
		}
		if kbps, ok := mappedBitrate(cfg); ok {
			data.BitrateKbps = kbps
			data.Bitrate = bitrate.FormatKbps(kbps)
		}
		return &models.CompileResponse{Body: data}, nil
	})
}

// mappedBitrate returns the kbps a vbr or cbr control position maps to.
// Passthrough has no rate control.
func mappedBitrate(cfg ffmpeg.EncodeConfig) (int, bool) {
	if cfg.Video.Family == encoders.FamilyPassthrough {
		return 0, false
	}
	if cfg.RateControl != ffmpeg.RateControlVBR && cfg.RateControl != ffmpeg.RateControlCBR {
		return 0, false
	}
	pos, err := strconv.Atoi(strings.TrimSpace(cfg.RateValue))
	if err != nil {
		return 0, false
	}
	return bitrate.Forward(pos), true
}

func (s *Server) engine() string {
	if s.options.Engine == "" {
		return "ffmpeg"
	}
	return s.options.Engine
}
