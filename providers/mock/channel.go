package mock

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/ruffel/tunnel"
)

// ErrNoExitStatus is returned by ExitCode when the channel ended without one.
var ErrNoExitStatus = errors.New("process ended without exit status")

// Channel is a scriptable tunnel.Channel. The zero value is not usable; call NewChannel.
type Channel struct {
	mu sync.Mutex

	stdout  bytes.Buffer
	stderr  bytes.Buffer
	written bytes.Buffer

	writeReady bool
	exited     bool
	exitCode   int
	exitKnown  bool
	readErr    error
	closed     bool
	closes     int

	onWrite func(ch *Channel, p []byte)
}

var _ tunnel.Channel = (*Channel)(nil)

// NewChannel returns a running channel that accepts writes.
func NewChannel() *Channel {
	return &Channel{writeReady: true}
}

// EmitStdout makes s available on the primary stream.
func (c *Channel) EmitStdout(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stdout.WriteString(s)
}

// EmitStderr makes s available on the error stream.
func (c *Channel) EmitStderr(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stderr.WriteString(s)
}

// Exit marks the process finished with code.
func (c *Channel) Exit(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.exited = true
	c.exitCode = code
	c.exitKnown = true
}

// Vanish marks the process finished without an exit status.
func (c *Channel) Vanish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.exited = true
}

// Break makes subsequent reads fail with err.
func (c *Channel) Break(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readErr = err
}

// SetWriteReady controls what WriteReady reports.
func (c *Channel) SetWriteReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeReady = ready
}

// OnWrite installs a hook called with every successful write.
// The hook runs without the channel lock held.
func (c *Channel) OnWrite(fn func(ch *Channel, p []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onWrite = fn
}

// ExitOnInterrupt makes the channel exit with code once it receives Ctrl+C.
func (c *Channel) ExitOnInterrupt(code int) {
	c.OnWrite(func(ch *Channel, p []byte) {
		if bytes.IndexByte(p, 0x03) >= 0 {
			ch.EmitStdout("^C\n")
			ch.Exit(code)
		}
	})
}

// Written returns everything written to the channel so far.
func (c *Channel) Written() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.written.String()
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// CloseCount returns how many times Close has been called.
func (c *Channel) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closes
}

// Write records p.
func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return 0, io.ErrClosedPipe
	}

	c.written.Write(p)
	hook := c.onWrite
	c.mu.Unlock()

	if hook != nil {
		hook(c, p)
	}

	return len(p), nil
}

// ReadStdout drains the primary stream.
func (c *Channel) ReadStdout() ([]byte, error) {
	return c.read(&c.stdout)
}

// ReadStderr drains the error stream.
func (c *Channel) ReadStderr() ([]byte, error) {
	return c.read(&c.stderr)
}

func (c *Channel) read(buf *bytes.Buffer) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, io.ErrClosedPipe
	}

	if c.readErr != nil {
		return nil, c.readErr
	}

	if buf.Len() == 0 {
		return nil, nil
	}

	out := bytes.Clone(buf.Bytes())
	buf.Reset()

	return out, nil
}

// WriteReady reports whether writes are accepted.
func (c *Channel) WriteReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.writeReady && !c.closed && !c.exited
}

// Exited reports whether Exit or Vanish has been called.
func (c *Channel) Exited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.exited
}

// ExitCode returns the code passed to Exit.
func (c *Channel) ExitCode() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.exitKnown {
		return -1, ErrNoExitStatus
	}

	return c.exitCode, nil
}

// Close closes the channel. It is safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.closes++

	return nil
}
