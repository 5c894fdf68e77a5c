package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ruffel/tunnel"
)

var (
	_ tunnel.Dialer       = (*Dialer)(nil)
	_ tunnel.Conn         = (*Conn)(nil)
	_ tunnel.FileTransfer = (*Conn)(nil)
)

// ErrClosed is returned by operations on a closed Conn.
var ErrClosed = errors.New("local connection closed")

// Dialer implements tunnel.Dialer for the local machine.
type Dialer struct {
	config Config
}

// New creates a new local dialer.
func New(opts ...Option) *Dialer {
	cfg := Config{Shell: DefaultShell}

	for _, opt := range opts {
		opt(&cfg)
	}

	return &Dialer{config: cfg}
}

// Dial returns a Conn. The target is accepted as-is: there is nothing to
// authenticate against locally.
func (d *Dialer) Dial(ctx context.Context, _ tunnel.Target) (tunnel.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Conn{config: d.config, channels: make(map[*Channel]struct{})}, nil
}

// Conn implements tunnel.Conn by spawning local shells.
// Thread-safe; closing it kills every channel still open.
type Conn struct {
	config Config

	mu       sync.Mutex
	channels map[*Channel]struct{}
	closed   bool
}

func (c *Conn) command(ctx context.Context, script string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.config.Shell, "-c", script)
	cmd.Dir = c.config.Dir

	if len(c.config.Env) > 0 {
		cmd.Env = append(os.Environ(), c.config.Env...)
	}

	return cmd
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// Run executes script synchronously.
func (c *Conn) Run(ctx context.Context, script string) (*tunnel.BufferedResult, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}

	var stdout, stderr bytes.Buffer

	cmd := c.command(ctx, script)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Cancellation must take the children with it.
	isolate(cmd)

	cmd.Cancel = func() error {
		return killProcessGroup(cmd.Process.Pid)
	}

	start := time.Now()
	err := cmd.Run()

	res := &tunnel.BufferedResult{
		Result: tunnel.Result{Duration: time.Since(start)},
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		exitErr := &exec.ExitError{}
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("running %s: %w", c.config.Shell, err)
		}

		res.ExitCode = exitErr.ExitCode()
	}

	return res, nil
}

// Open starts script on a new channel, attached to a pseudo-terminal when pty is non-nil.
func (c *Conn) Open(_ context.Context, script string, pty *tunnel.PtyRequest) (tunnel.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	// The channel outlives the Open call, so it must not use its context.
	cmd := c.command(context.Background(), script)

	var (
		ch  *Channel
		err error
	)

	if pty != nil {
		ch, err = startPty(cmd, pty)
	} else {
		ch, err = startPipes(cmd)
	}

	if err != nil {
		return nil, err
	}

	ch.onClose = c.forget
	c.channels[ch] = struct{}{}

	return ch, nil
}

func (c *Conn) forget(ch *Channel) {
	c.mu.Lock()
	delete(c.channels, ch)
	c.mu.Unlock()
}

// ActiveChannels returns the number of channels not yet closed.
func (c *Conn) ActiveChannels() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.channels)
}

// Close kills every open channel. New Run and Open calls fail afterwards.
func (c *Conn) Close() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return nil
	}

	c.closed = true

	open := make([]*Channel, 0, len(c.channels))
	for ch := range c.channels {
		open = append(open, ch)
	}
	c.mu.Unlock()

	var errs []error

	for _, ch := range open {
		if err := ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
