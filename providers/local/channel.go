package local

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/ruffel/tunnel"
)

var _ tunnel.Channel = (*Channel)(nil)

// stream collects output until the poll loop drains it.
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

// interruptByte is the ^C a terminal turns into SIGINT.
const interruptByte = 0x03

// Channel implements tunnel.Channel for one local process.
//
// With a PTY both output streams arrive merged on the terminal, as they do
// over SSH, and ReadStderr never returns data.
type Channel struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	tty    *os.File // nil without a PTY
	stdout stream
	stderr stream

	mu       sync.Mutex
	exited   bool
	exitCode int
	exitErr  error
	closed   bool
	done     chan struct{}
	onClose  func(*Channel)
}

func startPty(cmd *exec.Cmd, req *tunnel.PtyRequest) (*Channel, error) {
	// pty.Start makes the child a session leader, which also makes it the
	// leader of a new process group.
	tty, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(req.Rows), //nolint:gosec // bounded by config validation
		Cols: uint16(req.Cols), //nolint:gosec // bounded by config validation
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start pty: %w", err)
	}

	ch := &Channel{cmd: cmd, stdin: tty, tty: tty, done: make(chan struct{})}

	copied := make(chan struct{})

	go func() {
		defer close(copied)

		// Reading the master fails with EIO once the last writer is gone.
		_, _ = io.Copy(&ch.stdout, tty)
	}()

	go ch.wait(copied)

	return ch, nil
}

func startPipes(cmd *exec.Cmd) (*Channel, error) {
	ch := &Channel{cmd: cmd, done: make(chan struct{})}

	cmd.Stdout = &ch.stdout
	cmd.Stderr = &ch.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin: %w", err)
	}

	ch.stdin = stdin

	isolate(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", cmd.Path, err)
	}

	// cmd.Wait copies the pipes to completion before returning.
	copied := make(chan struct{})
	close(copied)

	go ch.wait(copied)

	return ch, nil
}

func (c *Channel) wait(copied <-chan struct{}) {
	defer close(c.done)

	err := c.cmd.Wait()

	<-copied

	c.mu.Lock()
	defer c.mu.Unlock()

	c.exited = true

	exitErr := &exec.ExitError{}

	switch {
	case err == nil:
		c.exitCode = 0
	case errors.As(err, &exitErr):
		c.exitCode = exitErr.ExitCode()
	default:
		c.exitCode = -1
		c.exitErr = err
	}
}

// Write sends p to the process's stdin (or terminal).
//
// Without a terminal there is no line discipline to turn a lone ^C into
// SIGINT, so Write delivers the signal to the process group itself.
func (c *Channel) Write(p []byte) (int, error) {
	if !c.WriteReady() {
		return 0, io.ErrClosedPipe
	}

	if c.tty == nil && len(p) == 1 && p[0] == interruptByte {
		if err := interruptProcessGroup(c.cmd.Process.Pid); err != nil {
			return 0, fmt.Errorf("interrupting process group: %w", err)
		}

		return 1, nil
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

// Exited reports whether the process has exited and its output has been collected.
func (c *Channel) Exited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.exited
}

// ExitCode returns the process exit status.
func (c *Channel) ExitCode() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.exited {
		return -1, errors.New("process still running")
	}

	return c.exitCode, c.exitErr
}

// Close kills the process group if it is still running and releases the terminal.
// It does not wait for the process to be reaped.
func (c *Channel) Close() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return nil
	}

	c.closed = true
	onClose := c.onClose
	c.mu.Unlock()

	select {
	case <-c.done:
	default:
		if c.cmd.Process != nil && c.cmd.Process.Pid > 0 {
			_ = killProcessGroup(c.cmd.Process.Pid)
		}
	}

	if c.tty != nil {
		_ = c.tty.Close()
	} else {
		_ = c.stdin.Close()
	}

	if onClose != nil {
		onClose(c)
	}

	return nil
}
