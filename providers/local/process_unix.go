//go:build !windows

package local

import (
	"os/exec"
	"syscall"
)

// isolate puts cmd in its own process group so signals reach its children too.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the group led by pid.
func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// interruptProcessGroup sends SIGINT to the group led by pid, as a terminal does on ^C.
func interruptProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGINT)
}
