package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ruffel/tunnel"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

var _ tunnel.Dialer = (*Dialer)(nil)

// Connection phases reported in *tunnel.TimeoutError and *tunnel.TransportError.
const (
	phaseConnect = "connect"
	phaseBanner  = "banner exchange"
	phaseAuth    = "authentication"
)

// Dialer implements tunnel.Dialer over SSH.
type Dialer struct {
	config Config
}

// NewDialer creates a Dialer. Host, port, user and password come from the
// tunnel.Target passed to Dial.
func NewDialer(opts ...Option) (*Dialer, error) {
	var c Config
	for _, opt := range opts {
		opt(&c)
	}

	c = c.WithDefaults()
	if c.HostKeyCheck == nil {
		return nil, errors.New("configuration error: HostKeyCheck is missing; you must provide a callback (e.g. valid 'known_hosts') or set InsecureSkipVerify=true (testing only)")
	}

	return &Dialer{config: c}, nil
}

// loadPrivateKeyAuth loads a private key from a file and returns an ssh.AuthMethod.
// Returns nil if the path is empty.
func loadPrivateKeyAuth(keyPath string) (ssh.AuthMethod, error) {
	if keyPath == "" {
		return nil, nil //nolint:nilnil // Valid state: no key path provided, so no auth method returned
	}

	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key file: %w", err)
	}

	return ssh.PublicKeys(signer), nil
}

// loadAgentAuth connects to the SSH agent and returns an ssh.AuthMethod.
// Returns nil if UseAgent is false or the agent socket is unavailable.
func loadAgentAuth(useAgent bool) ssh.AuthMethod {
	if !useAgent {
		return nil
	}

	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	conn, err := (&net.Dialer{Timeout: 500 * time.Millisecond}).DialContext(context.Background(), "unix", socket)
	if err != nil {
		return nil
	}

	signers, err := agent.NewClient(conn).Signers()
	if err != nil {
		return nil
	}

	return ssh.PublicKeys(signers...)
}

// configFor merges target into the dialer's base configuration.
func (d *Dialer) configFor(target tunnel.Target) Config {
	c := d.config
	c.Host = target.Host
	c.Port = target.Port
	c.User = target.User

	if target.Password != "" {
		c.Password = target.Password
	}

	return c.WithDefaults()
}

// Dial connects to target and authenticates.
//
// Each phase has its own bound: ConnectTimeout for the TCP connect,
// BannerTimeout for version exchange and key exchange, and AuthTimeout from
// host key verification until authentication completes.
func (d *Dialer) Dial(ctx context.Context, target tunnel.Target) (tunnel.Conn, error) {
	c := d.configFor(target)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	clientConfig, err := c.ToClientConfig()
	if err != nil {
		return nil, err
	}

	if keyAuth, err := loadPrivateKeyAuth(c.PrivateKeyPath); err != nil {
		return nil, err
	} else if keyAuth != nil {
		clientConfig.Auth = append(clientConfig.Auth, keyAuth)
	}

	if agentAuth := loadAgentAuth(c.UseAgent); agentAuth != nil {
		clientConfig.Auth = append(clientConfig.Auth, agentAuth)
	}

	addr := target.Addr()

	netConn, err := (&net.Dialer{Timeout: c.ConnectTimeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classify(err, phaseConnect, c.ConnectTimeout, c.User, addr)
	}

	ph := &phase{name: phaseBanner, limit: c.BannerTimeout}
	_ = netConn.SetDeadline(time.Now().Add(c.BannerTimeout))

	// The host key is checked at the end of key exchange; authentication starts
	// right after, so the deadline moves there.
	verify := clientConfig.HostKeyCallback
	clientConfig.HostKeyCallback = func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		ph.set(phaseAuth, c.AuthTimeout)
		_ = netConn.SetDeadline(time.Now().Add(c.AuthTimeout))

		return verify(hostname, remote, key)
	}

	stop := context.AfterFunc(ctx, func() { _ = netConn.Close() })
	defer stop()

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientConfig)
	if err != nil {
		_ = netConn.Close()

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		name, limit := ph.get()

		return nil, classify(err, name, limit, c.User, addr)
	}

	_ = netConn.SetDeadline(time.Time{})

	return newConn(ssh.NewClient(sshConn, chans, reqs), c), nil
}

// phase records which bounded step of the handshake is in progress.
// The host key callback runs on the handshake goroutine.
type phase struct {
	mu    sync.Mutex
	name  string
	limit time.Duration
}

func (p *phase) set(name string, limit time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.name, p.limit = name, limit
}

func (p *phase) get() (string, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.name, p.limit
}

// classify maps a dial or handshake failure onto the tunnel error types.
func classify(err error, phase string, limit time.Duration, user, addr string) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &tunnel.TimeoutError{Phase: phase, After: limit}
	}

	if strings.Contains(err.Error(), "unable to authenticate") || strings.Contains(err.Error(), "no supported methods remain") {
		return &tunnel.AuthenticationError{User: user, Addr: addr, Err: err}
	}

	return &tunnel.TransportError{Op: phase, Err: err}
}
