package docker

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// DefaultShell runs every script.
const DefaultShell = "/bin/sh"

// Config holds configuration parameters for reaching the Docker daemon.
type Config struct {
	// Host specifies the Docker daemon host (e.g. "unix:///var/run/docker.sock", "ssh://user@host").
	// If empty, it defaults to the value of DOCKER_HOST env var.
	Host string
	// Version specifies the Docker API version to use.
	// If empty, version negotiation is used.
	Version string
	// HTTPClient allows providing a custom *http.Client (e.g. for TLS config).
	HTTPClient *http.Client

	// Shell interprets scripts inside the container (default /bin/sh).
	Shell string
	// Env is added to the environment of every exec.
	Env []string
}

// WithDefaults fills zero-valued fields.
func (c Config) WithDefaults() Config {
	if c.Shell == "" {
		c.Shell = DefaultShell
	}

	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Shell == "" {
		return errors.New("configuration error: shell cannot be empty")
	}

	return nil
}

// ClientOpts converts the Config struct into a slice of Docker Client options.
func (c Config) ClientOpts() []client.Opt {
	opts := []client.Opt{
		client.FromEnv, // Respect DOCKER_HOST, DOCKER_TLS_VERIFY, etc from env
		client.WithAPIVersionNegotiation(),
	}

	if c.Host != "" {
		opts = append(opts, client.WithHost(c.Host))
	}

	if c.Version != "" {
		opts = append(opts, client.WithVersion(c.Version))
	}

	if c.HTTPClient != nil {
		opts = append(opts, client.WithHTTPClient(c.HTTPClient))
	}

	return opts
}

// engine is the part of the Docker API this package uses. *client.Client implements it.
type engine interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerExecCreate(ctx context.Context, container string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options container.ExecStartOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	CopyToContainer(ctx context.Context, container, path string, content io.Reader, options container.CopyToContainerOptions) error
	CopyFromContainer(ctx context.Context, container, srcPath string) (io.ReadCloser, container.PathStat, error)
	Close() error
}

var _ engine = (*client.Client)(nil)
