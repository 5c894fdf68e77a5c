// Package mock provides controllable implementations of tunnel.Dialer,
// tunnel.Conn and tunnel.Channel for testing purposes.
//
// Dialer and Conn are testify mocks. Channel is a scriptable fake: tests push
// output into it and decide when the process exits.
//
// Usage:
//
//	ch := mock.NewChannel()
//	conn := mock.NewConn()
//	conn.On("Open", mock.Anything, mock.Anything, mock.Anything).Return(ch, nil)
//	ch.EmitStdout("hello\n")
//	ch.Exit(0)
package mock
