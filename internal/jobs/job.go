package jobs

import (
	"time"

	"github.com/smazurov/encodenode/internal/encoders"
	"github.com/smazurov/encodenode/internal/ffmpeg"
	"github.com/smazurov/encodenode/internal/process"
)

// CreateParams describes a requested encode. Encoder is an identifier; it
// is resolved to a family once, when the job is accepted.
type CreateParams struct {
	Input       string
	Output      string
	Encoder     string
	FrameRate   int
	Height      int
	RateControl ffmpeg.RateControl
	RateValue   string
	Audio       ffmpeg.AudioPolicy
	Preview     bool
}

// EncodeConfig converts the parameters into a compiler input.
func (p CreateParams) EncodeConfig(video encoders.Encoder) ffmpeg.EncodeConfig {
	return ffmpeg.EncodeConfig{
		Video:       video,
		FrameRate:   p.FrameRate,
		Height:      p.Height,
		RateControl: p.RateControl,
		RateValue:   p.RateValue,
		Audio:       p.Audio,
	}
}

// Job is the immutable description of an accepted encode.
type Job struct {
	ID               string              `json:"id"`
	Input            string              `json:"input"`
	Output           string              `json:"output"`
	Preview          string              `json:"preview,omitempty"`
	Config           ffmpeg.EncodeConfig `json:"config"`
	Command          string              `json:"command"`
	Duration         float64             `json:"duration_seconds"`
	DurationFallback bool                `json:"duration_fallback"`
	CreatedAt        time.Time           `json:"created_at"`
}

// Snapshot pairs a job with the current state of its session.
type Snapshot struct {
	Job       Job          `json:"job"`
	Session   process.Info `json:"session"`
	Remaining float64      `json:"remaining_seconds"`
	// PreviewReady is true once a complete preview frame exists.
	PreviewReady bool `json:"preview_ready"`
}

type entry struct {
	job      Job
	session  *process.Session
	finished chan struct{}
}

func (e *entry) isFinished() bool {
	select {
	case <-e.finished:
		return true
	default:
		return false
	}
}
