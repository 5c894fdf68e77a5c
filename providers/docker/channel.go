package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/ruffel/tunnel"
)

var _ tunnel.Channel = (*Channel)(nil)

// ErrNoExitStatus is returned when the daemon could not report how the exec ended.
var ErrNoExitStatus = errors.New("exec ended without exit status")

// exitTimeout bounds how long an ended stream may wait for the exec to be reported stopped.
const exitTimeout = 30 * time.Second

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

// Channel implements tunnel.Channel for one attached exec.
type Channel struct {
	api    engine
	execID string
	resp   types.HijackedResponse
	stdout stream
	stderr stream

	mu       sync.Mutex
	exited   bool
	exitCode int
	exitErr  error
	closed   bool
}

func startChannel(api engine, execID string, resp types.HijackedResponse, tty bool) *Channel {
	ch := &Channel{api: api, execID: execID, resp: resp}

	go ch.wait(tty)

	return ch
}

// wait copies output until the stream ends, then asks the daemon for the exit code.
func (c *Channel) wait(tty bool) {
	if tty {
		// A TTY exec has a single raw stream.
		_, _ = io.Copy(&c.stdout, c.resp.Reader)
	} else {
		_, _ = stdcopy.StdCopy(&c.stdout, &c.stderr, c.resp.Reader)
	}

	inspect, err := pollForExitCode(context.Background(), c.api, c.execID, exitTimeout)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.exited = true
	c.exitCode = inspect.ExitCode

	if err != nil {
		c.exitCode = -1
		c.exitErr = errors.Join(ErrNoExitStatus, err)
	}
}

// pollForExitCode polls the Docker API until the exec process exits or times out.
func pollForExitCode(ctx context.Context, api engine, execID string, timeout time.Duration) (container.ExecInspect, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		inspectResp, err := api.ContainerExecInspect(pollCtx, execID)
		if err != nil {
			return inspectResp, err
		}

		if !inspectResp.Running {
			return inspectResp, nil
		}

		select {
		case <-pollCtx.Done():
			return inspectResp, pollCtx.Err()
		case <-ticker.C:
		}
	}
}

// Write sends p to the exec's stdin.
func (c *Channel) Write(p []byte) (int, error) {
	if !c.WriteReady() {
		return 0, io.ErrClosedPipe
	}

	return c.resp.Conn.Write(p)
}

// ReadStdout drains the bytes received on stdout (everything, under a TTY).
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

// WriteReady reports whether the exec is still running and attached.
func (c *Channel) WriteReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.closed && !c.exited
}

// Exited reports whether the stream ended and the exit code is known.
func (c *Channel) Exited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.exited
}

// ExitCode returns the exec's exit status.
func (c *Channel) ExitCode() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.exited {
		return -1, errors.New("process still running")
	}

	return c.exitCode, c.exitErr
}

// Close detaches from the exec. Docker has no API to kill an exec, so a process
// that ignored Ctrl+C keeps running inside the container.
func (c *Channel) Close() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return nil
	}

	c.closed = true
	c.mu.Unlock()

	c.resp.Close()

	return nil
}
