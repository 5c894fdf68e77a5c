package tunnel

import (
	"errors"
	"os"
	"time"

	"go.uber.org/zap"
)

// HomeMarker is reported as the working directory until the remote one is known.
const HomeMarker = "~"

// Config holds the tunables shared by the Registry and the Executor.
type Config struct {
	PollInterval     time.Duration // Poll loop tick (default 50ms)
	SnapshotInterval time.Duration // Minimum gap between onUpdate calls (default 300ms)
	InterruptGrace   time.Duration // How long Stop waits before force-closing (default 500ms)
	InputQueueSize   int           // Pending input capacity per session (default 64)
	Pty              PtyRequest    // Terminal requested for executions (default xterm 80x24)

	DialAttempts int           // Total dial attempts including the first (default 1)
	DialDelay    time.Duration // Wait between dial attempts

	Logger *zap.Logger // Defaults to a no-op logger
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:     50 * time.Millisecond,
		SnapshotInterval: 300 * time.Millisecond,
		InterruptGrace:   500 * time.Millisecond,
		InputQueueSize:   64,
		Pty:              *DefaultPty(),
		DialAttempts:     1,
		Logger:           zap.NewNop(),
	}
}

// WithDefaults fills zero-valued fields with defaults.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()

	if c.PollInterval == 0 {
		c.PollInterval = d.PollInterval
	}

	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = d.SnapshotInterval
	}

	if c.InterruptGrace == 0 {
		c.InterruptGrace = d.InterruptGrace
	}

	if c.InputQueueSize == 0 {
		c.InputQueueSize = d.InputQueueSize
	}

	if c.Pty.Term == "" {
		c.Pty = d.Pty
	}

	if c.DialAttempts < 1 {
		c.DialAttempts = 1
	}

	if c.Logger == nil {
		c.Logger = d.Logger
	}

	return c
}

// Validate rejects nonsensical settings.
func (c Config) Validate() error {
	if c.PollInterval < 0 || c.SnapshotInterval < 0 || c.InterruptGrace < 0 || c.DialDelay < 0 {
		return errors.New("configuration error: durations cannot be negative")
	}

	if c.InputQueueSize < 0 {
		return errors.New("configuration error: input queue size cannot be negative")
	}

	return nil
}

// Option defines a functional option for the core.
type Option func(*Config)

// WithConfig replaces the whole configuration.
func WithConfig(c Config) Option {
	return func(cfg *Config) {
		*cfg = c
	}
}

// WithPollInterval sets the poll loop tick.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = d
	}
}

// WithSnapshotInterval sets the throttle window between onUpdate calls.
func WithSnapshotInterval(d time.Duration) Option {
	return func(c *Config) {
		c.SnapshotInterval = d
	}
}

// WithInterruptGrace sets how long Stop waits for the interrupt to take effect.
func WithInterruptGrace(d time.Duration) Option {
	return func(c *Config) {
		c.InterruptGrace = d
	}
}

// WithInputQueueSize sets the pending input capacity of each session.
func WithInputQueueSize(n int) Option {
	return func(c *Config) {
		c.InputQueueSize = n
	}
}

// WithPty sets the terminal requested for executions.
func WithPty(p PtyRequest) Option {
	return func(c *Config) {
		c.Pty = p
	}
}

// WithDialRetry retries failed dials using linear backoff.
// Authentication failures are never retried.
// attempts: Total number of attempts (including the initial one). Must be >= 1.
// delay: Duration to wait between attempts.
func WithDialRetry(attempts int, delay time.Duration) Option {
	return func(c *Config) {
		if attempts < 1 {
			attempts = 1
		}

		c.DialAttempts = attempts
		c.DialDelay = delay
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func newConfig(opts []Option) (Config, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	cfg = cfg.WithDefaults()

	return cfg, cfg.Validate()
}

// FileConfig holds configuration for file transfers.
type FileConfig struct {
	Permissions os.FileMode // Destination perms override (0 means preserve/default)
	Progress    ProgressFunc
}

// FileOption defines a functional option for file transfers.
type FileOption func(*FileConfig)

// WithPermissions forces specific destination file mode.
func WithPermissions(mode os.FileMode) FileOption {
	return func(c *FileConfig) {
		c.Permissions = mode
	}
}

// ProgressFunc is a callback for tracking file transfer progress.
type ProgressFunc func(current, total int64)

// WithProgress calls fn with progress updates.
func WithProgress(fn ProgressFunc) FileOption {
	return func(c *FileConfig) {
		c.Progress = fn
	}
}

// NewFileConfig applies opts to an empty FileConfig.
func NewFileConfig(opts ...FileOption) FileConfig {
	var cfg FileConfig
	for _, o := range opts {
		o(&cfg)
	}

	return cfg
}
