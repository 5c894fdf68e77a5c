package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruffel/tunnel"
	"github.com/ruffel/tunnel/providers/docker"
	"github.com/ruffel/tunnel/providers/local"
	sshp "github.com/ruffel/tunnel/providers/ssh"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh/knownhosts"
)

// app is the wiring shared by the console and the run subcommand.
type app struct {
	settings settings
	log      *zap.Logger
	manager  *tunnel.Manager
}

func newApp(v *viper.Viper) (*app, error) {
	s, err := loadSettings(v)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(s.LogLevel)
	if err != nil {
		return nil, err
	}

	dialer, err := newDialer(s)
	if err != nil {
		return nil, err
	}

	cfg := s.Exec
	cfg.Logger = log

	mgr, err := tunnel.NewManager(dialer, tunnel.WithConfig(cfg))
	if err != nil {
		return nil, err
	}

	return &app{settings: s, log: log, manager: mgr}, nil
}

func (a *app) close(ctx context.Context) {
	_ = a.manager.Close(ctx)
	_ = a.log.Sync()
}

func (a *app) console(in io.Reader, out io.Writer) *console {
	return newConsole(a.manager, a.settings.Identity, a.resolveTarget, a.settings.PreviewBytes, in, out)
}

// resolveTarget turns "user@host[:port]" into a Target. Over SSH a bare name is
// looked up as an ssh_config alias.
func (a *app) resolveTarget(spec, password string) (tunnel.Target, error) {
	if password == "" {
		password = a.settings.SSH.Password
	}

	user, host, ok := strings.Cut(spec, "@")
	if ok {
		return tunnel.ParseTarget(host, user, password)
	}

	if a.settings.Transport != transportSSH {
		return tunnel.Target{}, fmt.Errorf("target %q must be user@host", spec)
	}

	c, err := sshp.NewFromSSHConfig(spec, a.settings.SSH.Config)
	if err != nil {
		return tunnel.Target{}, err
	}

	return tunnel.Target{Host: c.Host, Port: c.Port, User: c.User, Password: password}, nil
}

func newDialer(s settings) (tunnel.Dialer, error) {
	switch s.Transport {
	case transportLocal:
		return local.New(local.WithShell(s.Local.Shell)), nil
	case transportDocker:
		var opts []docker.Option
		if s.Docker.Host != "" {
			opts = append(opts, docker.WithHost(s.Docker.Host))
		}

		return docker.New(opts...)
	default:
		return newSSHDialer(s)
	}
}

func newSSHDialer(s settings) (*sshp.Dialer, error) {
	opts := []sshp.Option{
		sshp.WithAgent(s.SSH.Agent),
		sshp.WithTimeouts(s.SSH.ConnectTimeout, s.SSH.BannerTimeout, s.SSH.AuthTimeout),
	}

	if s.SSH.Key != "" {
		opts = append(opts, sshp.WithKeyPath(expandHome(s.SSH.Key)))
	}

	switch {
	case s.SSH.Insecure:
		opts = append(opts, sshp.WithInsecureSkipVerify(true))
	case s.SSH.KnownHosts != "":
		cb, err := knownhosts.New(expandHome(s.SSH.KnownHosts))
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}

		opts = append(opts, sshp.WithHostKeyCallback(cb))
	default:
		cb, err := sshp.DefaultKnownHosts()
		if err != nil {
			return nil, errors.Join(
				fmt.Errorf("loading ~/.ssh/known_hosts: %w", err),
				errors.New("pass --known-hosts or --insecure"),
			)
		}

		opts = append(opts, sshp.WithHostKeyCallback(cb))
	}

	return sshp.NewDialer(opts...)
}

func expandHome(p string) string {
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}

	return p
}
