package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ruffel/tunnel"
	"golang.org/x/crypto/ssh"
)

var (
	_ tunnel.Conn         = (*Conn)(nil)
	_ tunnel.FileTransfer = (*Conn)(nil)
)

// ErrClosed is returned by operations on a closed Conn.
var ErrClosed = errors.New("ssh connection closed")

// Conn implements tunnel.Conn over an authenticated SSH client.
// Every Run and Open uses a fresh SSH session, so no shell state carries over.
type Conn struct {
	config Config
	client *ssh.Client
	mu     sync.Mutex
	closed bool
}

func newConn(client *ssh.Client, config Config) *Conn {
	return &Conn{
		config: config,
		client: client,
	}
}

// NewFromClient wraps an existing client.
func NewFromClient(client *ssh.Client, config Config) *Conn {
	return newConn(client, config)
}

func (c *Conn) newSession() (*ssh.Session, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return nil, ErrClosed
	}

	session, err := c.client.NewSession()
	if err != nil {
		return nil, &tunnel.TransportError{Op: "open session", Err: err}
	}

	return session, nil
}

// Run executes script and waits for it to finish.
func (c *Conn) Run(ctx context.Context, script string) (*tunnel.BufferedResult, error) {
	session, err := c.newSession()
	if err != nil {
		return nil, err
	}

	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer

	session.Stdout = &stdout
	session.Stderr = &stderr

	stop := context.AfterFunc(ctx, func() {
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
	})
	defer stop()

	start := time.Now()
	err = session.Run(buildFullCommand(c.config.Env, script))

	res := &tunnel.BufferedResult{
		Result: tunnel.Result{Duration: time.Since(start)},
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		exitErr := &ssh.ExitError{}
		if !errors.As(err, &exitErr) {
			return nil, &tunnel.TransportError{Op: "run", Err: err}
		}

		res.ExitCode = exitErr.ExitStatus()
	}

	return res, nil
}

// Open starts script on a new SSH session, with a PTY when pty is non-nil.
func (c *Conn) Open(_ context.Context, script string, pty *tunnel.PtyRequest) (tunnel.Channel, error) {
	session, err := c.newSession()
	if err != nil {
		return nil, err
	}

	ch, err := startChannel(session, buildFullCommand(c.config.Env, script), pty)
	if err != nil {
		_ = session.Close()

		return nil, err
	}

	return ch, nil
}

// Close closes the underlying SSH connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	if c.client != nil {
		if err := c.client.Close(); err != nil {
			return fmt.Errorf("closing ssh client: %w", err)
		}
	}

	return nil
}
