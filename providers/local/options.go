package local

// DefaultShell runs every script.
const DefaultShell = "/bin/sh"

// Config holds configuration for the local dialer.
type Config struct {
	Shell string   // Interpreter invoked as "<shell> -c <script>" (default /bin/sh)
	Env   []string // Extra KEY=VALUE pairs added to the inherited environment
	Dir   string   // Directory new shells start in (default: the process's own)
}

// Option defines a functional option for the local provider.
type Option func(*Config)

// WithShell sets the interpreter used for scripts.
func WithShell(shell string) Option {
	return func(c *Config) {
		c.Shell = shell
	}
}

// WithEnv adds environment variables to every script.
func WithEnv(env ...string) Option {
	return func(c *Config) {
		c.Env = append(c.Env, env...)
	}
}

// WithDir sets the directory new shells start in, the local analogue of a
// remote login directory.
func WithDir(dir string) Option {
	return func(c *Config) {
		c.Dir = dir
	}
}
