package main

import (
	"errors"
	"fmt"
	"os/user"
	"strings"
	"time"

	"github.com/ruffel/tunnel"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	transportSSH    = "ssh"
	transportLocal  = "local"
	transportDocker = "docker"
)

// settings is the resolved configuration of one invocation.
type settings struct {
	Transport string
	Identity  string
	LogLevel  string

	SSH struct {
		Key            string
		Agent          bool
		KnownHosts     string
		Insecure       bool
		Password       string
		Config         string
		ConnectTimeout time.Duration
		BannerTimeout  time.Duration
		AuthTimeout    time.Duration
	}

	Local struct {
		Shell string
	}

	Docker struct {
		Host string
	}

	Exec tunnel.Config

	PreviewBytes int
}

// setDefaults registers every key so that env overrides work without a config file.
func setDefaults(v *viper.Viper) {
	core := tunnel.DefaultConfig()

	v.SetDefault("transport", transportSSH)
	v.SetDefault("identity", currentUser())
	v.SetDefault("log.level", "warn")

	v.SetDefault("ssh.key", "")
	v.SetDefault("ssh.agent", true)
	v.SetDefault("ssh.known_hosts", "")
	v.SetDefault("ssh.insecure", false)
	v.SetDefault("ssh.password", "")
	v.SetDefault("ssh.config", "")
	v.SetDefault("ssh.connect_timeout", "10s")
	v.SetDefault("ssh.banner_timeout", "10s")
	v.SetDefault("ssh.auth_timeout", "10s")

	v.SetDefault("local.shell", "/bin/sh")
	v.SetDefault("docker.host", "")

	v.SetDefault("exec.poll_interval", core.PollInterval.String())
	v.SetDefault("exec.snapshot_interval", core.SnapshotInterval.String())
	v.SetDefault("exec.interrupt_grace", core.InterruptGrace.String())
	v.SetDefault("exec.input_queue", core.InputQueueSize)
	v.SetDefault("exec.dial_attempts", core.DialAttempts)
	v.SetDefault("exec.dial_delay", "1s")
	v.SetDefault("exec.term", core.Pty.Term)
	v.SetDefault("exec.cols", core.Pty.Cols)
	v.SetDefault("exec.rows", core.Pty.Rows)

	v.SetDefault("console.preview_bytes", 4000)
}

// initConfig layers defaults, the config file and TUNNEL_* environment variables.
func initConfig(v *viper.Viper, cfgFile string) error {
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.config/tunnel")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TUNNEL")
	// e.g. TUNNEL_SSH_KEY for ssh.key
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	return nil
}

// bindFlags maps persistent flags onto their config keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"transport":      "transport",
		"identity":       "identity",
		"log-level":      "log.level",
		"key":            "ssh.key",
		"agent":          "ssh.agent",
		"known-hosts":    "ssh.known_hosts",
		"insecure":       "ssh.insecure",
		"ssh-config":     "ssh.config",
		"shell":          "local.shell",
		"docker-host":    "docker.host",
		"interrupt-wait": "exec.interrupt_grace",
	}

	for flag, key := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}

	return nil
}

func loadSettings(v *viper.Viper) (settings, error) {
	var s settings

	s.Transport = strings.ToLower(v.GetString("transport"))
	s.Identity = v.GetString("identity")
	s.LogLevel = v.GetString("log.level")

	s.SSH.Key = v.GetString("ssh.key")
	s.SSH.Agent = v.GetBool("ssh.agent")
	s.SSH.KnownHosts = v.GetString("ssh.known_hosts")
	s.SSH.Insecure = v.GetBool("ssh.insecure")
	s.SSH.Password = v.GetString("ssh.password")
	s.SSH.Config = v.GetString("ssh.config")
	s.SSH.ConnectTimeout = v.GetDuration("ssh.connect_timeout")
	s.SSH.BannerTimeout = v.GetDuration("ssh.banner_timeout")
	s.SSH.AuthTimeout = v.GetDuration("ssh.auth_timeout")

	s.Local.Shell = v.GetString("local.shell")
	s.Docker.Host = v.GetString("docker.host")

	s.Exec = tunnel.Config{
		PollInterval:     v.GetDuration("exec.poll_interval"),
		SnapshotInterval: v.GetDuration("exec.snapshot_interval"),
		InterruptGrace:   v.GetDuration("exec.interrupt_grace"),
		InputQueueSize:   v.GetInt("exec.input_queue"),
		DialAttempts:     v.GetInt("exec.dial_attempts"),
		DialDelay:        v.GetDuration("exec.dial_delay"),
		Pty: tunnel.PtyRequest{
			Term: v.GetString("exec.term"),
			Cols: v.GetInt("exec.cols"),
			Rows: v.GetInt("exec.rows"),
		},
	}

	s.PreviewBytes = v.GetInt("console.preview_bytes")

	switch s.Transport {
	case transportSSH, transportLocal, transportDocker:
	default:
		return s, fmt.Errorf("unknown transport %q (want ssh, local or docker)", s.Transport)
	}

	if s.Identity == "" {
		return s, errors.New("identity cannot be empty")
	}

	if s.PreviewBytes <= 0 {
		return s, errors.New("console.preview_bytes must be positive")
	}

	if err := s.Exec.Validate(); err != nil {
		return s, err
	}

	return s, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}

	return "operator"
}
