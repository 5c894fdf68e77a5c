package tunnel

import (
	"sync"
	"time"
)

// Session is one operator's authenticated connection, its tracked working
// directory, its pending input and at most one active Execution.
type Session struct {
	identity    string
	target      Target
	conn        Conn
	connectedAt time.Time

	dir   *DirectoryTracker
	input *InputQueue

	mu     sync.Mutex
	active *Execution
	closed bool
}

func newSession(identity string, target Target, conn Conn, initialDir string, queueSize int) *Session {
	return &Session{
		identity:    identity,
		target:      target,
		conn:        conn,
		connectedAt: time.Now(),
		dir:         NewDirectoryTracker(initialDir),
		input:       NewInputQueue(queueSize),
	}
}

// Identity returns the operator identity the session is registered under.
func (s *Session) Identity() string {
	return s.identity
}

// Target returns the remote account, without its credential.
func (s *Session) Target() Target {
	t := s.target
	t.Password = ""

	return t
}

// ConnectedAt returns when the session was established.
func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

// Directory returns the session's DirectoryTracker.
func (s *Session) Directory() *DirectoryTracker {
	return s.dir
}

// Active returns the running Execution, or nil when idle.
func (s *Session) Active() *Execution {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

// Closed reports whether the session has been disconnected.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// Info returns a point-in-time description of the session.
func (s *Session) Info() SessionInfo {
	info := SessionInfo{
		Identity:    s.identity,
		Target:      s.Target(),
		ConnectedAt: s.connectedAt,
		Uptime:      time.Since(s.connectedAt),
		Directory:   s.dir.Current(),
	}

	if exec := s.Active(); exec != nil {
		info.Active = exec.Info()
	}

	return info
}

// claim registers exec as the active execution.
func (s *Session) claim(exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	if s.active != nil {
		return ErrBusy
	}

	s.active = exec

	return nil
}

// release clears exec from the slot and discards its pending input.
// It is a no-op if exec is no longer the active execution.
func (s *Session) release(exec *Execution) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != exec {
		return false
	}

	s.active = nil
	s.input.Drain()

	return true
}

// enqueue adds input for the active execution.
func (s *Session) enqueue(data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNoActiveExecution
	}

	return s.input.TryPush(data)
}

// busy reports whether an execution currently holds the slot.
func (s *Session) busy() bool {
	return s.Active() != nil
}

// close marks the session closed and releases the connection.
func (s *Session) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true
	s.input.Drain()
	s.mu.Unlock()

	return s.conn.Close()
}
