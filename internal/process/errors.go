package process

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCancelled is the Result error of a session stopped on request.
	ErrCancelled = errors.New("encode cancelled")
	// ErrAlreadyStarted is returned by Start on a session that left Idle.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrSessionNotFound is returned by Pool operations on unknown IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by Pool.Start when the ID is in use.
	ErrSessionExists = errors.New("session already exists")
)

// SpawnError reports that the engine process could not be created.
type SpawnError struct {
	Binary string
	Cause  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Binary, e.Cause)
}

func (e *SpawnError) Unwrap() error {
	return e.Cause
}

// RuntimeFailure reports an engine that exited non-zero without being
// cancelled. Excerpt holds the last diagnostic lines, never the full log.
type RuntimeFailure struct {
	ExitCode int
	Summary  string
	Excerpt  []string
}

func (e *RuntimeFailure) Error() string {
	if e.Summary == "" {
		return fmt.Sprintf("engine exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("engine exited with code %d: %s", e.ExitCode, e.Summary)
}

// Detail returns the excerpt as one block of text.
func (e *RuntimeFailure) Detail() string {
	return strings.Join(e.Excerpt, "\n")
}
