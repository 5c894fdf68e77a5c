// Package ssh provides a tunnel.Dialer for remote servers over SSH.
//
// It uses "golang.org/x/crypto/ssh" and gives:
//   - One SSH session per script, with a PTY for interactive channels
//   - Separate bounds for the TCP connect, banner exchange and authentication
//   - Password, keyboard-interactive, private key and agent authentication
//   - File transfers (Upload/Download) via SFTP
//
// Dial failures are classified into tunnel.AuthenticationError,
// tunnel.TimeoutError and tunnel.TransportError so callers can decide what to
// retry.
//
// Usage:
//
//	d, err := ssh.NewDialer(ssh.WithKeyPath("~/.ssh/id_ed25519"), ssh.WithHostKeyCallback(cb))
//	m, err := tunnel.NewManager(d)
//	_, err = m.Connect(ctx, "alice", tunnel.Target{Host: "example.com", User: "deploy"})
package ssh
