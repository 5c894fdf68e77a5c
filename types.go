package tunnel

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is used when a target omits the port.
const DefaultPort = 22

// Target identifies a remote account to connect to.
type Target struct {
	Host     string // Hostname or IP address
	Port     int    // Port number (default 22)
	User     string // Username to authenticate as
	Password string // Password credential (may be empty when keys or an agent are used)
}

// Addr returns the "host:port" dial address.
func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = DefaultPort
	}

	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// String returns "user@host:port". The credential is never included.
func (t Target) String() string {
	if t.User == "" {
		return t.Addr()
	}

	return t.User + "@" + t.Addr()
}

// Validate checks that the target is dialable.
func (t Target) Validate() error {
	if strings.TrimSpace(t.Host) == "" {
		return errors.New("target host cannot be empty")
	}

	if strings.TrimSpace(t.User) == "" {
		return errors.New("target user cannot be empty")
	}

	if t.Port < 0 || t.Port > 65535 {
		return fmt.Errorf("target port %d out of range", t.Port)
	}

	return nil
}

// ParseTarget parses "host" or "host:port" (IPv6 literals in brackets) into a Target.
func ParseTarget(hostPort, user, password string) (Target, error) {
	hostPort = strings.TrimSpace(hostPort)
	if hostPort == "" {
		return Target{}, errors.New("empty host")
	}

	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		// No port present.
		host = strings.Trim(hostPort, "[]")
		portStr = ""
	}

	port := DefaultPort

	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return Target{}, fmt.Errorf("invalid port %q: %w", portStr, err)
		}
	}

	t := Target{Host: host, Port: port, User: user, Password: password}

	return t, t.Validate()
}

// PtyRequest describes the pseudo-terminal allocated for an interactive channel.
type PtyRequest struct {
	Term string
	Cols int
	Rows int
}

// DefaultPty returns the terminal used for executions (xterm, 80x24).
func DefaultPty() *PtyRequest {
	return &PtyRequest{Term: "xterm", Cols: 80, Rows: 24}
}

// Result contains metadata about a completed one-shot command.
type Result struct {
	ExitCode int           // Process exit code (0 indicates success)
	Duration time.Duration // Time taken for execution
}

// BufferedResult extends Result with captured stdout/stderr content.
// Returned by Runner.Run.
type BufferedResult struct {
	Result

	Stdout []byte
	Stderr []byte
}

// Success returns true if the command completed with exit code 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Status is the lifecycle state of an Execution.
type Status int32

const (
	// StatusStarting means the channel is being opened.
	StatusStarting Status = iota
	// StatusRunning means the poll loop is active.
	StatusRunning
	// StatusDraining means the process exited and the final output is being collected.
	StatusDraining
	// StatusCompleted means the process exited on its own (any exit code).
	StatusCompleted
	// StatusInterrupted means the execution was stopped by the operator.
	StatusInterrupted
	// StatusFailed means a transport fault aborted the execution.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusDraining:
		return "draining"
	case StatusCompleted:
		return "completed"
	case StatusInterrupted:
		return "interrupted"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusInterrupted || s == StatusFailed
}

// OutcomeKind classifies how a command was handled by the DirectoryTracker.
type OutcomeKind int

const (
	// OutcomePassThrough means the command runs remotely, qualified by the tracked directory.
	OutcomePassThrough OutcomeKind = iota
	// OutcomeDirectoryChanged means a "cd" succeeded and the tracked directory moved.
	OutcomeDirectoryChanged
	// OutcomeDirectoryChangeFailed means a "cd" failed and the tracked directory is unchanged.
	OutcomeDirectoryChangeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePassThrough:
		return "pass-through"
	case OutcomeDirectoryChanged:
		return "directory-changed"
	case OutcomeDirectoryChangeFailed:
		return "directory-change-failed"
	default:
		return "unknown"
	}
}

// RewriteOutcome is the DirectoryTracker's verdict for one raw command.
type RewriteOutcome struct {
	Kind    OutcomeKind
	Command string // Qualified command (OutcomePassThrough only)
	Old     string // Previous directory (OutcomeDirectoryChanged only)
	New     string // New directory (OutcomeDirectoryChanged only)
	Path    string // Requested path (directory outcomes)
	Reason  string // Failure reason (OutcomeDirectoryChangeFailed only)
}

// ExecResult is the final report of Executor.Execute.
type ExecResult struct {
	ID       string // Execution ID; empty for directory changes
	Command  string // Command as typed by the operator
	Outcome  RewriteOutcome
	Status   Status
	Output   string // Complete final buffer
	ExitCode int    // -1 when unknown (interrupted or failed)
	Duration time.Duration
}

// Success returns true if the command completed with exit code 0,
// or if it was a successful directory change.
func (r *ExecResult) Success() bool {
	return r.Status == StatusCompleted && r.ExitCode == 0
}

// SessionInfo is a point-in-time description of a Session.
type SessionInfo struct {
	Identity    string
	Target      Target
	ConnectedAt time.Time
	Uptime      time.Duration
	Directory   string
	Active      *ExecutionInfo // nil when idle
}

// ExecutionInfo describes the running command of a Session.
type ExecutionInfo struct {
	ID        string
	Command   string
	Status    Status
	StartedAt time.Time
	Running   time.Duration
}
