// Package tunnel provides interactive, per-operator command sessions on a remote machine.
//
// # Core Types
//
// - Registry: the set of live Sessions keyed by operator identity.
// - Session: one authenticated connection plus its tracked working directory.
// - Executor: runs one command at a time on a Session and streams its output.
// - Manager: identity-keyed facade used by presentation layers.
//
// # Transports
//
// The core never talks to a network directly. A Dialer produces a Conn, and a Conn
// opens Channels. See providers/ssh for the SSH implementation and providers/local
// for a local PTY-backed one.
//
// # Working Directory
//
// Every remote invocation runs in a fresh shell. A Session keeps the logical
// working directory itself and prefixes each command with a "cd" into it.
//
// # Snapshots
//
// Output is reported through an UpdateFunc. Each call carries the entire buffer
// accumulated so far, never a delta.
package tunnel

import (
	"context"
	"io"
)

// Dialer opens authenticated connections to a Target.
type Dialer interface {
	// Dial connects and authenticates.
	// Implementations return *AuthenticationError, *TimeoutError or *TransportError on failure.
	Dial(ctx context.Context, target Target) (Conn, error)
}

// Runner executes a one-shot script and returns its complete output.
type Runner interface {
	// Run executes script in a fresh remote shell and waits for it to finish.
	// A non-zero exit code is reported in the result, not as an error.
	Run(ctx context.Context, script string) (*BufferedResult, error)
}

// Conn is an authenticated connection to a remote machine.
type Conn interface {
	io.Closer
	Runner

	// Open starts script on a new interactive channel.
	// A PTY is allocated when pty is non-nil.
	Open(ctx context.Context, script string, pty *PtyRequest) (Channel, error)
}

// Channel is a single running remote process.
//
// Read methods never block: they return whatever has arrived since the previous call.
type Channel interface {
	io.Closer
	io.Writer

	// ReadStdout drains the bytes currently available on the primary stream.
	ReadStdout() ([]byte, error)

	// ReadStderr drains the bytes currently available on the error stream.
	ReadStderr() ([]byte, error)

	// WriteReady reports whether the process currently accepts input.
	WriteReady() bool

	// Exited reports whether the remote process has finished and all of its
	// output has been received.
	Exited() bool

	// ExitCode returns the exit status (only valid once Exited reports true).
	// An error means the process ended without reporting a status.
	ExitCode() (int, error)
}

// FileTransfer is implemented by connections that can copy files.
type FileTransfer interface {
	// Upload copies a local file to remotePath, creating missing parent directories.
	Upload(ctx context.Context, localPath, remotePath string, opts ...FileOption) error

	// Download copies a remote file to localPath, creating missing parent directories.
	Download(ctx context.Context, remotePath, localPath string, opts ...FileOption) error
}

// UpdateFunc receives cumulative output snapshots while a command runs.
// Each call replaces the previous one.
type UpdateFunc func(command, output string)
