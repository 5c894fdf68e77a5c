package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
	"github.com/ruffel/tunnel"
)

var _ tunnel.Dialer = (*Dialer)(nil)

// Dialer implements tunnel.Dialer for containers on one Docker daemon.
type Dialer struct {
	config Config
	engine func(Config) (engine, error)
}

// New creates a Dialer. The daemon is contacted on Dial.
func New(opts ...Option) (*Dialer, error) {
	var c Config
	for _, opt := range opts {
		opt(&c)
	}

	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &Dialer{config: c, engine: newClient}, nil
}

func newClient(c Config) (engine, error) {
	cli, err := client.NewClientWithOpts(c.ClientOpts()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return cli, nil
}

// Dial connects to the daemon and checks that target.Host accepts execs as target.User.
func (d *Dialer) Dial(ctx context.Context, target tunnel.Target) (tunnel.Conn, error) {
	api, err := d.engine(d.config)
	if err != nil {
		return nil, &tunnel.TransportError{Op: "connect", Err: err}
	}

	if _, err := api.Ping(ctx); err != nil {
		_ = api.Close()

		return nil, &tunnel.TransportError{Op: "connect", Err: err}
	}

	conn := newConn(api, d.config, target.Host, target.User)

	if _, err := conn.Run(ctx, "true"); err != nil {
		_ = conn.Close()

		return nil, err
	}

	return conn, nil
}
