// Package docker implements tunnel.Dialer for running Docker containers.
//
// A container stands in for the remote machine: tunnel.Target.Host names the
// container and tunnel.Target.User the account commands run as. Every script is
// a separate "docker exec"; interactive channels get an exec TTY so Ctrl+C
// reaches the foreground process.
//
// Usage:
//
//	dialer, err := docker.New()
//	m, err := tunnel.NewManager(dialer)
//	_, err = m.Connect(ctx, "alice", tunnel.Target{Host: "my-container", User: "root"})
package docker
