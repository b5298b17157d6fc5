package process

import (
	"time"

	"github.com/smazurov/encodenode/internal/ffmpeg"
)

// State is the lifecycle state of an encode session.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether no further transition can happen.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// IsActive reports whether a process is alive for this state.
func (s State) IsActive() bool {
	return s == StateRunning || s == StatePaused
}

// transitions lists every legal move. Idle goes straight to Failed only
// when the engine cannot be spawned.
var transitions = map[State][]State{
	StateIdle:    {StateRunning, StateFailed},
	StateRunning: {StatePaused, StateCompleted, StateFailed, StateCancelled},
	StatePaused:  {StateRunning, StateFailed, StateCancelled},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Result is the single terminal report of a session.
type Result struct {
	State    State         `json:"state"`
	ExitCode int           `json:"exit_code"`
	Err      error         `json:"-"`
	Excerpt  []string      `json:"excerpt,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Info is a point-in-time snapshot of a session.
type Info struct {
	ID        string          `json:"id"`
	State     State           `json:"state"`
	PID       int             `json:"pid,omitempty"`
	Command   string          `json:"command,omitempty"`
	Duration  float64         `json:"duration_seconds"`
	StartedAt time.Time       `json:"started_at,omitzero"`
	EndedAt   time.Time       `json:"ended_at,omitzero"`
	Progress  ffmpeg.Progress `json:"progress"`
	ExitCode  int             `json:"exit_code"`
	LastError string          `json:"last_error,omitempty"`
}
