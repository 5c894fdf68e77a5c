//go:build windows

package local

import (
	"os/exec"
	"strconv"
)

// isolate is a no-op: taskkill /T walks the process tree instead of a group.
func isolate(_ *exec.Cmd) {}

// killProcessGroup terminates pid and its descendants.
func killProcessGroup(pid int) error {
	return exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).Run()
}

// interruptProcessGroup has no console to deliver CTRL_C_EVENT to, so it
// terminates the tree instead.
func interruptProcessGroup(pid int) error {
	return killProcessGroup(pid)
}
