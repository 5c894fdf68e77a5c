package ssh

import (
	"time"

	"golang.org/x/crypto/ssh"
)

// Option defines a functional option for the SSH provider.
type Option func(*Config)

// WithConfig returns an Option that sets multiple fields from a Config struct.
func WithConfig(c Config) Option {
	return func(cfg *Config) {
		*cfg = c
	}
}

// WithKeyPath sets the path to the private key file.
func WithKeyPath(path string) Option {
	return func(c *Config) {
		c.PrivateKeyPath = path
	}
}

// WithPrivateKey sets PEM encoded private key content.
func WithPrivateKey(pem string) Option {
	return func(c *Config) {
		c.PrivateKey = pem
	}
}

// WithAgent enables authentication through SSH_AUTH_SOCK.
func WithAgent(use bool) Option {
	return func(c *Config) {
		c.UseAgent = use
	}
}

// WithHostKeyCallback sets the host key verifier.
func WithHostKeyCallback(cb ssh.HostKeyCallback) Option {
	return func(c *Config) {
		c.HostKeyCheck = cb
	}
}

// WithInsecureSkipVerify enables/disables strict host key checking.
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *Config) {
		c.InsecureSkipVerify = skip
	}
}

// WithTimeouts bounds the connect, banner and authentication phases.
func WithTimeouts(connect, banner, auth time.Duration) Option {
	return func(c *Config) {
		c.ConnectTimeout = connect
		c.BannerTimeout = banner
		c.AuthTimeout = auth
	}
}

// WithEnv adds KEY=VALUE pairs exported before every remote script.
func WithEnv(env ...string) Option {
	return func(c *Config) {
		c.Env = append(c.Env, env...)
	}
}
