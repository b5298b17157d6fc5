package process

import (
	"log/slog"

	"github.com/smazurov/encodenode/internal/ffmpeg"
)

// StateChangeCallback is called on every session transition.
// Used for domain-specific reactions (e.g., events, metrics).
type StateChangeCallback func(id string, oldState, newState State)

// ProgressCallback receives the latest merged progress of a session.
type ProgressCallback func(id string, p ffmpeg.Progress)

// ExitCallback receives the terminal Result of a session exactly once.
type ExitCallback func(id string, res Result)

// Configurer adjusts session options before the session is created.
type Configurer func(id string, opts *Options)

// PoolOptions configures a new Pool.
type PoolOptions struct {
	// Controller signals process trees. If nil, a TreeController is used.
	Controller Controller

	OnStateChange StateChangeCallback
	OnProgress    ProgressCallback
	OnExit        ExitCallback

	// ConfigureSession allows customization of each session (optional).
	ConfigureSession Configurer

	// ExcerptLines is the failure excerpt length. Zero uses the default.
	ExcerptLines int

	// MaxRetained caps how many sessions are remembered. Terminal sessions
	// are evicted oldest first. Zero keeps everything.
	MaxRetained int

	// Logger for pool and session events. If nil, uses slog.Default().
	Logger *slog.Logger

	// EngineLogger receives engine output lines.
	EngineLogger *slog.Logger
}
