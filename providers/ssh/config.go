package ssh

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/ruffel/tunnel"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Default bounds for the three connection phases.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultBannerTimeout  = 10 * time.Second
	DefaultAuthTimeout    = 10 * time.Second
)

// Config holds all parameters required to establish an SSH connection.
//
// Host, Port, User and Password are overridden by the tunnel.Target passed to
// Dial; the remaining fields apply to every connection made by a Dialer.
type Config struct {
	// Connection details
	Host string // Hostname or IP address
	Port int    // Port number (default 22)
	User string // Username to authenticate as

	// Authentication methods (tried in order)
	Password       string // Password for authentication
	PrivateKey     string // PEM encoded private key content (string)
	PrivateKeyPath string // Path to private key file (e.g. "~/.ssh/id_rsa")
	UseAgent       bool   // If true, attempt to connect to SSH_AUTH_SOCK

	// Phase bounds
	ConnectTimeout time.Duration // TCP connect (default 10s)
	BannerTimeout  time.Duration // Version banner and key exchange (default 10s)
	AuthTimeout    time.Duration // User authentication (default 10s)

	HostKeyCheck       ssh.HostKeyCallback // Callback to verify host key. You normally generate this from known_hosts.
	InsecureSkipVerify bool                // If true, disables strict host key checking. Use ONLY for testing.

	// Env is exported (KEY=VALUE) at the start of every remote script.
	Env []string
}

// NewConfig creates a Config with safe defaults.
// Note: It does NOT set a default HostKeyCheck. You must provide one or set InsecureSkipVerify=true.
func NewConfig(host, username string) Config {
	return Config{
		Host:           host,
		User:           username,
		Port:           tunnel.DefaultPort,
		ConnectTimeout: DefaultConnectTimeout,
		BannerTimeout:  DefaultBannerTimeout,
		AuthTimeout:    DefaultAuthTimeout,
	}
}

// NewFromSSHConfig loads configuration from an SSH config file (e.g. ~/.ssh/config).
// An empty path reads the default ~/.ssh/config.
func NewFromSSHConfig(alias, path string) (Config, error) {
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".ssh", "config")
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open ssh config: %w", err)
	}

	defer func() { _ = f.Close() }()

	return NewFromSSHConfigReader(alias, f)
}

// NewFromSSHConfigReader parses ssh_config data and resolves alias to its
// HostName, User, Port, IdentityFile, ConnectTimeout and StrictHostKeyChecking.
func NewFromSSHConfigReader(alias string, r io.Reader) (Config, error) {
	cfg, err := ssh_config.Decode(r)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse ssh config: %w", err)
	}

	hostName, err := cfg.Get(alias, "HostName")
	if err != nil || hostName == "" {
		hostName = alias // Fallback if no HostName defined
	}

	username, _ := cfg.Get(alias, "User")
	if username == "" {
		// Use current system user if not specified in config
		if u, _ := user.Current(); u != nil {
			username = u.Username
		}
	}

	c := NewConfig(hostName, username)

	if portStr, _ := cfg.Get(alias, "Port"); portStr != "" {
		_, _ = fmt.Sscanf(portStr, "%d", &c.Port)
	}

	identityFile, _ := cfg.Get(alias, "IdentityFile")
	if strings.HasPrefix(identityFile, "~/") {
		identityFile = filepath.Join(os.Getenv("HOME"), identityFile[2:])
	}

	c.PrivateKeyPath = identityFile

	// ConnectTimeout is in seconds and, as in OpenSSH, also bounds the handshake.
	if secs, _ := cfg.Get(alias, "ConnectTimeout"); secs != "" {
		var n int
		if _, err := fmt.Sscanf(secs, "%d", &n); err == nil && n > 0 {
			c.ConnectTimeout = time.Duration(n) * time.Second
			c.BannerTimeout = c.ConnectTimeout
		}
	}

	if agent, _ := cfg.Get(alias, "IdentityAgent"); agent != "none" {
		c.UseAgent = true
	}

	// Map StrictHostKeyChecking
	if strict, _ := cfg.Get(alias, "StrictHostKeyChecking"); strict == "no" {
		c.InsecureSkipVerify = true
	}

	return c, nil
}

// WithDefaults sets default values for zero-valued fields.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = tunnel.DefaultPort
	}

	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}

	if c.BannerTimeout == 0 {
		c.BannerTimeout = DefaultBannerTimeout
	}

	if c.AuthTimeout == 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}

	// If insecure is requested and no callback provided, use insecure ignore.
	if c.InsecureSkipVerify && c.HostKeyCheck == nil {
		c.HostKeyCheck = ssh.InsecureIgnoreHostKey() //nolint:gosec // explicitly requested
	}

	return c
}

// Validate ensures all required fields are present.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("configuration error: host address cannot be empty")
	}

	if c.User == "" {
		return errors.New("configuration error: user cannot be empty")
	}

	if c.HostKeyCheck == nil {
		return errors.New("configuration error: HostKeyCheck is missing; you must provide a callback (e.g. valid 'known_hosts') or set InsecureSkipVerify=true (testing only)")
	}

	if c.ConnectTimeout < 0 || c.BannerTimeout < 0 || c.AuthTimeout < 0 {
		return errors.New("configuration error: timeouts cannot be negative")
	}

	return nil
}

// ToClientConfig converts the local Config struct to the underlying ssh.ClientConfig.
// Key files and the agent are not consulted here; see authMethods.
func (c Config) ToClientConfig() (*ssh.ClientConfig, error) {
	config := &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{},
		HostKeyCallback: c.HostKeyCheck,
		Timeout:         c.ConnectTimeout,
	}

	// Add auth methods
	if c.Password != "" {
		config.Auth = append(config.Auth,
			ssh.Password(c.Password),
			ssh.KeyboardInteractive(answerWithPassword(c.Password)),
		)
	}

	if c.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(c.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}

		config.Auth = append(config.Auth, ssh.PublicKeys(signer))
	}

	return config, nil
}

// answerWithPassword answers every keyboard-interactive prompt with password,
// which is what servers with only PAM password prompts expect.
func answerWithPassword(password string) ssh.KeyboardInteractiveChallenge {
	return func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}

		return answers, nil
	}
}

// DefaultKnownHosts returns a HostKeyCallback that verifies the host key against
// strict entries in the user's ~/.ssh/known_hosts file.
func DefaultKnownHosts() (ssh.HostKeyCallback, error) {
	path := filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts")

	return knownhosts.New(path)
}
