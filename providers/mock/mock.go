package mock

import (
	"context"

	"github.com/ruffel/tunnel"
	"github.com/stretchr/testify/mock"
)

// Anything is re-exported so callers need only this package to set expectations.
const Anything = mock.Anything

// Dialer implements a mock tunnel.Dialer using testify/mock.
type Dialer struct {
	mock.Mock
}

var _ tunnel.Dialer = (*Dialer)(nil)

// NewDialer creates a new mock dialer.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial mocks connecting to target.
func (m *Dialer) Dial(ctx context.Context, target tunnel.Target) (tunnel.Conn, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(tunnel.Conn), args.Error(1)
}

// Conn implements a mock tunnel.Conn (and tunnel.FileTransfer) using testify/mock.
type Conn struct {
	mock.Mock
}

var (
	_ tunnel.Conn         = (*Conn)(nil)
	_ tunnel.FileTransfer = (*Conn)(nil)
)

// NewConn creates a new mock connection.
func NewConn() *Conn {
	return &Conn{}
}

// Run mocks a one-shot script.
func (m *Conn) Run(ctx context.Context, script string) (*tunnel.BufferedResult, error) {
	args := m.Called(ctx, script)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*tunnel.BufferedResult), args.Error(1)
}

// Open mocks opening an interactive channel.
func (m *Conn) Open(ctx context.Context, script string, pty *tunnel.PtyRequest) (tunnel.Channel, error) {
	args := m.Called(ctx, script, pty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(tunnel.Channel), args.Error(1)
}

// Upload mocks uploading a file.
func (m *Conn) Upload(ctx context.Context, localPath, remotePath string, opts ...tunnel.FileOption) error {
	// Variadic capture fix for testify
	args := m.Called(ctx, localPath, remotePath, opts)

	return args.Error(0)
}

// Download mocks downloading a file.
func (m *Conn) Download(ctx context.Context, remotePath, localPath string, opts ...tunnel.FileOption) error {
	args := m.Called(ctx, remotePath, localPath, opts)

	return args.Error(0)
}

// Close mocks closing the connection.
func (m *Conn) Close() error {
	args := m.Called()

	return args.Error(0)
}

// Stdout builds a successful one-shot result with the given output.
func Stdout(out string) *tunnel.BufferedResult {
	return &tunnel.BufferedResult{Stdout: []byte(out)}
}

// Failed builds a one-shot result with a non-zero exit code and the given error output.
func Failed(code int, stderr string) *tunnel.BufferedResult {
	return &tunnel.BufferedResult{
		Result: tunnel.Result{ExitCode: code},
		Stderr: []byte(stderr),
	}
}
