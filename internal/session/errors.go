package session

import "errors"

// ValidationError reports bad input to ProcessImage. It is returned
// synchronously and leaves the session state untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

var (
	// ErrNotReady guards operations that only make sense once processing
	// has finished: selection changes and export.
	ErrNotReady = errors.New("session is not ready")

	// ErrNoSelection rejects an export with nothing selected.
	ErrNoSelection = errors.New("no slices selected")

	// ErrProtocolViolation marks a worker message that breaks the channel
	// contract: duplicate or out-of-range chunk index, or a message after a
	// terminal state. It is a programming bug, not a user-recoverable error.
	ErrProtocolViolation = errors.New("worker protocol violation")
)
