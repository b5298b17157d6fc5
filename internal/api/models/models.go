package models

import (
	"time"

	"github.com/smazurov/encodenode/internal/encoders"
	"github.com/smazurov/encodenode/internal/ffmpeg"
	"github.com/smazurov/encodenode/internal/logging"
)

// Health check models
type HealthData struct {
	Status     string `json:"status" example:"ok" doc:"Service status"`
	Message    string `json:"message" example:"API is healthy" doc:"Status message"`
	ActiveJobs int    `json:"active_jobs" example:"1" doc:"Running or paused encodes"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.25.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Encoder models
type EncoderInfo struct {
	Name        string          `json:"name" example:"hevc_nvenc" doc:"Engine encoder identifier"`
	Family      encoders.Family `json:"family" example:"nvenc" doc:"Backend family"`
	Codec       encoders.Codec  `json:"codec,omitempty" example:"hevc" doc:"Output video codec"`
	Description string          `json:"description" example:"NVIDIA NVENC" doc:"Family description"`
	HWAccel     bool            `json:"hwaccel" example:"true" doc:"Whether this is a hardware-accelerated encoder"`
}

type EncoderData struct {
	Encoders []EncoderInfo `json:"encoders" doc:"Working encoders, best first, stream copy last"`
	Count    int           `json:"count" example:"4" doc:"Number of encoders"`
}

type EncodersResponse struct {
	Body EncoderData
}

// EncodeSettings is the encode configuration shared by compile and job requests.
type EncodeSettings struct {
	Encoder     string             `json:"encoder" minLength:"1" example:"hevc_nvenc" doc:"Video encoder identifier, or copy"`
	FrameRate   int                `json:"frame_rate,omitempty" minimum:"0" example:"30" doc:"Output frame rate, 0 keeps source"`
	Height      int                `json:"height,omitempty" minimum:"0" example:"1080" doc:"Output height (720, 1080, 1440, 2160), 0 keeps source"`
	RateControl string             `json:"rate_control" enum:"cqp,vbr,cbr" example:"cqp" doc:"Rate control mode"`
	RateValue   string             `json:"rate_value" example:"28" doc:"Quality index 0-51 for cqp, bitrate control position 0-100 for vbr and cbr"`
	Audio       ffmpeg.AudioPolicy `json:"audio" doc:"Audio handling"`
}

// Compile models
type CompileRequest struct {
	Body EncodeSettings
}

type CompileData struct {
	Encoder     EncoderInfo `json:"encoder" doc:"Resolved encoder"`
	Known       bool        `json:"known" doc:"False when the encoder fell back to software rate control"`
	Args        []string    `json:"args" doc:"Compiled engine arguments"`
	Command     string      `json:"command" example:"ffmpeg -y -i INPUT -c:v hevc_nvenc ... OUTPUT" doc:"Full command with placeholder paths"`
	BitrateKbps int         `json:"bitrate_kbps,omitempty" example:"4300" doc:"Mapped bitrate for vbr and cbr"`
	Bitrate     string      `json:"bitrate,omitempty" example:"4.3 Mbps" doc:"Mapped bitrate for display"`
}

type CompileResponse struct {
	Body CompileData
}

// Job models
type JobRequestData struct {
	EncodeSettings
	Input   string `json:"input" minLength:"1" example:"/srv/media/in.mkv" doc:"Input file"`
	Output  string `json:"output" minLength:"1" example:"/srv/media/out.mp4" doc:"Output file"`
	Preview bool   `json:"preview,omitempty" doc:"Write a live preview frame once a second"`
}

type JobRequest struct {
	Body JobRequestData
}

type ProgressData struct {
	Elapsed   float64 `json:"elapsed_seconds" example:"90.5" doc:"Encoded media time"`
	Speed     float64 `json:"speed" example:"2.5" doc:"Speed relative to realtime"`
	SizeKiB   float64 `json:"size_kib" example:"2048" doc:"Output size so far"`
	Size      string  `json:"size" example:"2.0 MiB" doc:"Output size for display"`
	Percent   float64 `json:"percent" example:"50" doc:"Percent complete"`
	Remaining float64 `json:"remaining_seconds" example:"36.2" doc:"Estimated seconds left, -1 when unknown"`
}

type JobData struct {
	ID               string       `json:"id" example:"3f1c9a0e-7d6b-4c2a-9a51-5f0f5d3b6c11" doc:"Job identifier"`
	Input            string       `json:"input" doc:"Input file"`
	Output           string       `json:"output" doc:"Output file"`
	Encoder          string       `json:"encoder" example:"hevc_nvenc" doc:"Video encoder"`
	Family           string       `json:"family" example:"nvenc" doc:"Backend family"`
	Command          string       `json:"command" doc:"Engine command line"`
	State            string       `json:"state" enum:"idle,running,paused,completed,failed,cancelled" doc:"Lifecycle state"`
	PID              int          `json:"pid,omitempty" doc:"Engine process ID while active"`
	Duration         float64      `json:"duration_seconds" doc:"Probed input duration"`
	DurationFallback bool         `json:"duration_fallback" doc:"True when the duration probe failed and a fallback was used"`
	Progress         ProgressData `json:"progress" doc:"Latest progress sample"`
	ExitCode         int          `json:"exit_code" doc:"Engine exit code once finished"`
	Error            string       `json:"error,omitempty" doc:"Failure description"`
	PreviewEnabled   bool         `json:"preview_enabled" doc:"Whether a preview is written"`
	PreviewReady     bool         `json:"preview_ready" doc:"Whether a preview frame is available"`
	CreatedAt        time.Time    `json:"created_at" doc:"When the job was accepted"`
	StartedAt        time.Time    `json:"started_at,omitzero" doc:"When the engine started"`
	EndedAt          time.Time    `json:"ended_at,omitzero" doc:"When the engine exited"`
}

type JobResponse struct {
	Body JobData
}

type JobListData struct {
	Jobs  []JobData `json:"jobs" doc:"Jobs, oldest first"`
	Count int       `json:"count" example:"2" doc:"Number of jobs"`
}

type JobListResponse struct {
	Body JobListData
}

type JobIDInput struct {
	ID string `path:"id" example:"3f1c9a0e-7d6b-4c2a-9a51-5f0f5d3b6c11" doc:"Job identifier"`
}

// PreviewResponse carries a raw JPEG frame.
type PreviewResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	LastModified string `header:"Last-Modified"`
	Body         []byte
}

// Log models
type LogsInput struct {
	Limit  int    `query:"limit" minimum:"0" default:"200" doc:"Maximum entries, newest kept"`
	Module string `query:"module" example:"jobs" doc:"Only entries from this module"`
	Level  string `query:"level" example:"warn" doc:"Minimum level: debug, info, warn or error"`
}

type LogsData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Log entries, oldest first"`
	Count   int                `json:"count" doc:"Number of entries"`
}

type LogsResponse struct {
	Body LogsData
}

// EventsInput filters the event stream.
type EventsInput struct {
	JobID string `query:"job_id" doc:"Only events of this job"`
}
