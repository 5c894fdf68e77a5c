// Package local provides a tunnel.Dialer that runs scripts on the local machine.
//
// Each script runs in a fresh "sh -c", exactly like a command arriving over a
// new SSH session, so it is a faithful stand-in for a remote host in tests and
// for driving the console without a server. Interactive channels use a real
// pseudo-terminal via github.com/creack/pty.
//
// Usage:
//
//	d := local.New()
//	m, _ := tunnel.NewManager(d)
//	_, _ = m.Connect(ctx, "me", tunnel.Target{Host: "localhost", User: "me"})
package local
