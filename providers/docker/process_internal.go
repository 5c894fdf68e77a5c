package docker

import (
	"github.com/docker/docker/api/types/container"
	"github.com/ruffel/tunnel"
)

// buildExecConfig describes one "sh -c script" exec. A TTY is requested when pty is non-nil.
func buildExecConfig(cfg Config, user, script string, pty *tunnel.PtyRequest) container.ExecOptions {
	opts := container.ExecOptions{
		User:         user,
		Cmd:          []string{cfg.Shell, "-c", script},
		Env:          cfg.Env,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  pty != nil,
		Tty:          pty != nil,
	}

	if pty != nil {
		opts.Env = append(append([]string(nil), cfg.Env...), "TERM="+pty.Term)
		opts.ConsoleSize = &[2]uint{uint(pty.Rows), uint(pty.Cols)}
	}

	return opts
}

// buildAttachConfig creates the configuration for attaching to a Docker exec instance.
func buildAttachConfig(tty bool) container.ExecStartOptions {
	return container.ExecStartOptions{
		Tty: tty,
	}
}
