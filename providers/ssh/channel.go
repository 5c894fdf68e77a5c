package ssh

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ruffel/tunnel"
	"golang.org/x/crypto/ssh"
)

var _ tunnel.Channel = (*Channel)(nil)

// ErrNoExitStatus is returned when the remote side closed the channel without
// reporting how the process ended.
var ErrNoExitStatus = errors.New("remote process ended without exit status")

// stream collects bytes written by the SSH session's copy goroutine until the
// poll loop drains them.
type stream struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buf.Write(p)
}

func (s *stream) drain() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf.Len() == 0 {
		return nil
	}

	out := bytes.Clone(s.buf.Bytes())
	s.buf.Reset()

	return out
}

// Channel implements tunnel.Channel for one SSH session.
type Channel struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  stream
	stderr  stream

	mu       sync.Mutex
	exited   bool
	exitCode int
	exitErr  error
	closed   bool
	done     chan struct{}
}

func startChannel(session *ssh.Session, script string, pty *tunnel.PtyRequest) (*Channel, error) {
	ch := &Channel{
		session: session,
		done:    make(chan struct{}),
	}

	session.Stdout = &ch.stdout
	session.Stderr = &ch.stderr

	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin: %w", err)
	}

	ch.stdin = stdin

	if pty != nil {
		if err := session.RequestPty(pty.Term, pty.Rows, pty.Cols, buildTerminalModes()); err != nil {
			return nil, fmt.Errorf("request for pty failed: %w", err)
		}
	}

	if err := session.Start(script); err != nil {
		return nil, &tunnel.TransportError{Op: "start", Err: err}
	}

	go ch.wait()

	return ch, nil
}

// wait records how the session ended. session.Wait returns only after the
// stdout and stderr copies have finished, so Exited implies all output arrived.
func (c *Channel) wait() {
	defer close(c.done)

	err := c.session.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.exited = true

	exitErr := &ssh.ExitError{}

	switch {
	case err == nil:
		c.exitCode = 0
	case errors.As(err, &exitErr):
		c.exitCode = exitErr.ExitStatus()
	default:
		c.exitCode = -1
		c.exitErr = fmt.Errorf("%w: %w", ErrNoExitStatus, err)
	}
}

// Write sends p to the remote process's stdin.
func (c *Channel) Write(p []byte) (int, error) {
	if !c.WriteReady() {
		return 0, io.ErrClosedPipe
	}

	return c.stdin.Write(p)
}

// ReadStdout drains the bytes received on stdout.
func (c *Channel) ReadStdout() ([]byte, error) {
	return c.read(&c.stdout)
}

// ReadStderr drains the bytes received on stderr.
func (c *Channel) ReadStderr() ([]byte, error) {
	return c.read(&c.stderr)
}

func (c *Channel) read(s *stream) ([]byte, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return nil, io.ErrClosedPipe
	}

	return s.drain(), nil
}

// WriteReady reports whether the process is still running and the channel open.
func (c *Channel) WriteReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.closed && !c.exited
}

// Exited reports whether the session has ended and its output has been copied.
func (c *Channel) Exited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.exited
}

// ExitCode returns the remote exit status.
func (c *Channel) ExitCode() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.exited {
		return -1, errors.New("process still running")
	}

	return c.exitCode, c.exitErr
}

// Close closes the SSH session. It does not wait for the remote process.
func (c *Channel) Close() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return nil
	}

	c.closed = true
	c.mu.Unlock()

	_ = c.stdin.Close()

	if err := c.session.Close(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}
