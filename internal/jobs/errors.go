package jobs

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for unknown job IDs.
var ErrNotFound = errors.New("job not found")

// Error codes carried by Error.
const (
	ErrCodeInvalidParams = "INVALID_PARAMS"
	ErrCodePreflight     = "PREFLIGHT_FAILED"
	ErrCodeBusy          = "JOB_BUSY"
)

// Error is a job request the service refused before spawning anything.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}
