package tunnel

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected indicates that the operator identity has no live session.
	ErrNotConnected = errors.New("not connected")

	// ErrBusy indicates that the session already has a running command.
	ErrBusy = errors.New("another command is already running")

	// ErrNoActiveExecution indicates that there is no running command to act on.
	ErrNoActiveExecution = errors.New("no active command")

	// ErrInputQueueFull indicates that pending input was rejected because the queue is at capacity.
	ErrInputQueueFull = errors.New("input queue is full")

	// ErrEmptyCommand indicates that a blank command was submitted.
	ErrEmptyCommand = errors.New("command cannot be empty")

	// ErrSessionClosed indicates that an operation was attempted on a disconnected session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrNotSupported indicates that the transport does not implement the requested feature.
	ErrNotSupported = errors.New("operation not supported")

	// ErrTimeout matches any *TimeoutError via errors.Is.
	ErrTimeout = errors.New("timed out")
)

// AuthenticationError represents a rejected credential.
type AuthenticationError struct {
	User string
	Addr string
	Err  error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for %s@%s: %v", e.User, e.Addr, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// TransportError represents a failure in the underlying transport
// (e.g. connection refused, protocol error, channel lost).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("transport error: %v", e.Err)
	}

	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TimeoutError represents a bounded connection phase (connect, banner, auth) that ran out of time.
type TimeoutError struct {
	Phase string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Phase, e.After)
}

// Is makes errors.Is(err, ErrTimeout) true for every TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// DirectoryChangeError reports a "cd" that the remote shell refused.
// The tracked working directory is left untouched.
type DirectoryChangeError struct {
	Path   string
	Reason string
}

func (e *DirectoryChangeError) Error() string {
	return fmt.Sprintf("failed to change directory to %q: %s", e.Path, e.Reason)
}

// ExecutionError reports a transport fault while a command was running.
// The session's connection remains usable.
type ExecutionError struct {
	Command string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution of %q failed: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
