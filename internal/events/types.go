package events

// Event type constants for kelindar/event.
const (
	TypeJobCreated uint32 = iota + 1
	TypeJobStateChanged
	TypeJobProgress
	TypeJobFinished
	TypePreviewUpdated
	TypeEncodersProbed
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// JobCreatedEvent is published when an encode job is accepted.
type JobCreatedEvent struct {
	JobID     string `json:"job_id" example:"3f1c9a0e-7d6b-4c2a-9a51-5f0f5d3b6c11" doc:"Job identifier"`
	Input     string `json:"input" example:"/srv/media/in.mkv" doc:"Input path"`
	Output    string `json:"output" example:"/srv/media/out.mp4" doc:"Output path"`
	Encoder   string `json:"encoder" example:"hevc_nvenc" doc:"Video encoder"`
	Command   string `json:"command" doc:"Engine command line"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for JobCreatedEvent.
func (e JobCreatedEvent) Type() uint32 { return TypeJobCreated }

// JobStateChangedEvent reports a lifecycle transition.
type JobStateChangedEvent struct {
	JobID     string `json:"job_id" doc:"Job identifier"`
	From      string `json:"from" example:"running" doc:"Previous state"`
	To        string `json:"to" example:"paused" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for JobStateChangedEvent.
func (e JobStateChangedEvent) Type() uint32 { return TypeJobStateChanged }

// JobProgressEvent carries the latest progress sample of a job.
type JobProgressEvent struct {
	JobID     string  `json:"job_id" doc:"Job identifier"`
	Elapsed   float64 `json:"elapsed_seconds" example:"90.5" doc:"Output timestamp reached, seconds"`
	Speed     float64 `json:"speed" example:"2.5" doc:"Encode speed relative to realtime"`
	SizeKiB   float64 `json:"size_kib" example:"2048" doc:"Output size so far, KiB"`
	Percent   float64 `json:"percent" example:"50" doc:"Percent complete, 0-100"`
	Remaining float64 `json:"remaining_seconds" example:"36.2" doc:"Estimated seconds left, -1 when unknown"`
}

// Type returns the event type identifier for JobProgressEvent.
func (e JobProgressEvent) Type() uint32 { return TypeJobProgress }

// JobFinishedEvent reports the terminal outcome of a job.
type JobFinishedEvent struct {
	JobID     string   `json:"job_id" doc:"Job identifier"`
	State     string   `json:"state" example:"completed" doc:"Terminal state: completed, failed, cancelled"`
	ExitCode  int      `json:"exit_code" doc:"Engine exit code"`
	Error     string   `json:"error,omitempty" doc:"Failure description"`
	Excerpt   []string `json:"excerpt,omitempty" doc:"Last engine diagnostic lines"`
	Elapsed   float64  `json:"elapsed_seconds" doc:"Wall clock run time"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for JobFinishedEvent.
func (e JobFinishedEvent) Type() uint32 { return TypeJobFinished }

// PreviewUpdatedEvent is published when a job writes a complete preview frame.
type PreviewUpdatedEvent struct {
	JobID     string `json:"job_id" doc:"Job identifier"`
	Size      int64  `json:"size" doc:"Frame size in bytes"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PreviewUpdatedEvent.
func (e PreviewUpdatedEvent) Type() uint32 { return TypePreviewUpdated }

// EncodersProbedEvent is published when the working encoder set changes,
// either from a probe or from a reload of saved results.
type EncodersProbedEvent struct {
	Source    string   `json:"source" example:"probe" doc:"probe or reload"`
	Working   []string `json:"working" doc:"Working encoder identifiers"`
	Failed    int      `json:"failed" doc:"Number of encoders that failed the probe"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for EncodersProbedEvent.
func (e EncodersProbedEvent) Type() uint32 { return TypeEncodersProbed }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"jobs" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
