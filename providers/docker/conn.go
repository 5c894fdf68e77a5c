package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/ruffel/tunnel"
)

var (
	_ tunnel.Conn         = (*Conn)(nil)
	_ tunnel.FileTransfer = (*Conn)(nil)
)

// ErrClosed is returned by operations on a closed Conn.
var ErrClosed = errors.New("docker connection closed")

// Conn implements tunnel.Conn for one container. Every Run and Open is a fresh exec.
type Conn struct {
	api       engine
	config    Config
	container string
	user      string

	mu     sync.Mutex
	closed bool
}

func newConn(api engine, config Config, container, user string) *Conn {
	return &Conn{
		api:       api,
		config:    config,
		container: container,
		user:      user,
	}
}

// exec creates and attaches an exec for script.
func (c *Conn) exec(ctx context.Context, script string, pty *tunnel.PtyRequest) (string, types.HijackedResponse, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return "", types.HijackedResponse{}, ErrClosed
	}

	idResp, err := c.api.ContainerExecCreate(ctx, c.container, buildExecConfig(c.config, c.user, script, pty))
	if err != nil {
		return "", types.HijackedResponse{}, &tunnel.TransportError{Op: "create exec", Err: err}
	}

	resp, err := c.api.ContainerExecAttach(ctx, idResp.ID, buildAttachConfig(pty != nil))
	if err != nil {
		return "", types.HijackedResponse{}, &tunnel.TransportError{Op: "attach exec", Err: err}
	}

	return idResp.ID, resp, nil
}

// Run executes script and waits for it to finish.
func (c *Conn) Run(ctx context.Context, script string) (*tunnel.BufferedResult, error) {
	start := time.Now()

	execID, resp, err := c.exec(ctx, script, nil)
	if err != nil {
		return nil, err
	}

	defer resp.Close()

	stop := context.AfterFunc(ctx, resp.Close)
	defer stop()

	var stdout, stderr bytes.Buffer

	if _, err := stdcopy.StdCopy(&stdout, &stderr, resp.Reader); err != nil && ctx.Err() == nil {
		return nil, &tunnel.TransportError{Op: "run", Err: err}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	inspect, err := pollForExitCode(ctx, c.api, execID, 30*time.Second)
	if err != nil {
		return nil, &tunnel.TransportError{Op: "inspect exec", Err: err}
	}

	return &tunnel.BufferedResult{
		Result: tunnel.Result{ExitCode: inspect.ExitCode, Duration: time.Since(start)},
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}, nil
}

// Open starts script on a new exec, with a TTY when pty is non-nil.
func (c *Conn) Open(ctx context.Context, script string, pty *tunnel.PtyRequest) (tunnel.Channel, error) {
	execID, resp, err := c.exec(ctx, script, pty)
	if err != nil {
		return nil, err
	}

	return startChannel(c.api, execID, resp, pty != nil), nil
}

// Close releases the Docker client. Running execs are not killed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	if err := c.api.Close(); err != nil {
		return fmt.Errorf("closing docker client: %w", err)
	}

	return nil
}
