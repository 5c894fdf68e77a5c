package tunnel_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/ruffel/tunnel"
	"github.com/ruffel/tunnel/providers/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testTarget = tunnel.Target{Host: "host", Port: 22, User: "op", Password: "secret"}

// fastOptions shrinks every interval so tests settle in milliseconds.
func fastOptions(t testing.TB, extra ...tunnel.Option) []tunnel.Option {
	t.Helper()

	opts := []tunnel.Option{
		tunnel.WithPollInterval(2 * time.Millisecond),
		tunnel.WithSnapshotInterval(10 * time.Millisecond),
		tunnel.WithInterruptGrace(100 * time.Millisecond),
		tunnel.WithLogger(zaptest.NewLogger(t)),
	}

	return append(opts, extra...)
}

// connect registers a session backed by conn whose initial directory is /home/op.
func connect(t testing.TB, conn *mock.Conn, opts ...tunnel.Option) (*tunnel.Registry, *tunnel.Session) {
	t.Helper()

	dialer := mock.NewDialer()
	dialer.On("Dial", mock.Anything, testTarget).Return(conn, nil)
	conn.On("Run", mock.Anything, "pwd").Return(mock.Stdout("/home/op\n"), nil)
	conn.On("Close").Return(nil).Maybe()

	reg, err := tunnel.NewRegistry(dialer, fastOptions(t, opts...)...)
	require.NoError(t, err)

	s, err := reg.Connect(context.Background(), "alice", testTarget)
	require.NoError(t, err)

	return reg, s
}

// expectOpen makes conn hand out ch for command run from /home/op.
func expectOpen(conn *mock.Conn, command string, ch tunnel.Channel) {
	conn.On("Open", mock.Anything, "cd '/home/op' && "+command, mock.Anything).Return(ch, nil).Once()
}

// snapshots records every onUpdate call.
type snapshots struct {
	mu  sync.Mutex
	all []string
}

func (s *snapshots) update(_, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.all = append(s.all, output)
}

func (s *snapshots) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.all...)
}

// background is an Execute call running on its own goroutine.
type background struct {
	res  *tunnel.ExecResult
	err  error
	done chan struct{}
}

func start(ctx context.Context, e *tunnel.Executor, s *tunnel.Session, command string, onUpdate tunnel.UpdateFunc) *background {
	b := &background{done: make(chan struct{})}

	go func() {
		defer close(b.done)
		b.res, b.err = e.Execute(ctx, s, command, onUpdate)
	}()

	return b
}

func (b *background) wait(t *testing.T) (*tunnel.ExecResult, error) {
	t.Helper()

	select {
	case <-b.done:
		return b.res, b.err
	case <-time.After(5 * time.Second):
		t.Fatal("execution did not finish")

		return nil, nil
	}
}

func waitRunning(t *testing.T, s *tunnel.Session) *tunnel.Execution {
	t.Helper()

	require.Eventually(t, func() bool {
		exec := s.Active()

		return exec != nil && exec.Status() == tunnel.StatusRunning
	}, 2*time.Second, time.Millisecond)

	return s.Active()
}

func TestExecute_Completes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		script   func(ch *mock.Channel)
		output   string
		exitCode int
	}{
		{
			name: "stdout only",
			script: func(ch *mock.Channel) {
				ch.EmitStdout("hi\n")
				ch.Exit(0)
			},
			output: "hi\n",
		},
		{
			name: "stderr is tagged and exit status appended",
			script: func(ch *mock.Channel) {
				ch.EmitStdout("out\n")
				ch.EmitStderr("bad\n")
				ch.Exit(2)
			},
			output:   "out\n[stderr] bad\n\n\nexit status: 2",
			exitCode: 2,
		},
		{
			name: "silent failure",
			script: func(ch *mock.Channel) {
				ch.Exit(1)
			},
			output:   "\n\nexit status: 1",
			exitCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn := mock.NewConn()
			reg, s := connect(t, conn)

			ch := mock.NewChannel()
			tt.script(ch)
			expectOpen(conn, "run", ch)

			res, err := reg.Executor().Execute(t.Context(), s, "run", nil)
			require.NoError(t, err)

			assert.Equal(t, tunnel.StatusCompleted, res.Status)
			assert.Equal(t, tt.output, res.Output)
			assert.Equal(t, tt.exitCode, res.ExitCode)
			assert.Equal(t, "run", res.Command)
			assert.NotEmpty(t, res.ID)
			assert.Equal(t, tunnel.OutcomePassThrough, res.Outcome.Kind)
			assert.True(t, ch.Closed())
			assert.Nil(t, s.Active())
		})
	}
}

func TestExecute_UsesConfiguredPty(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	reg, s := connect(t, conn, tunnel.WithPty(tunnel.PtyRequest{Term: "vt100", Cols: 120, Rows: 40}))

	ch := mock.NewChannel()
	ch.Exit(0)
	conn.On("Open", mock.Anything, "cd '/home/op' && top", &tunnel.PtyRequest{Term: "vt100", Cols: 120, Rows: 40}).
		Return(ch, nil).Once()

	_, err := reg.Executor().Execute(t.Context(), s, "top", nil)
	require.NoError(t, err)
	conn.AssertExpectations(t)
}

func TestExecute_RejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	reg, s := connect(t, conn)
	e := reg.Executor()

	_, err := e.Execute(t.Context(), s, "   ", nil)
	require.ErrorIs(t, err, tunnel.ErrEmptyCommand)

	ch := mock.NewChannel()
	expectOpen(conn, "sleep 60", ch)

	running := start(t.Context(), e, s, "sleep 60", nil)
	waitRunning(t, s)

	_, err = e.Execute(t.Context(), s, "ls", nil)
	require.ErrorIs(t, err, tunnel.ErrBusy)

	ch.Exit(0)

	_, err = running.wait(t)
	require.NoError(t, err)

	_, err = reg.Disconnect(t.Context(), "alice")
	require.NoError(t, err)

	_, err = e.Execute(t.Context(), s, "ls", nil)
	require.ErrorIs(t, err, tunnel.ErrSessionClosed)
}

func TestExecute_ChangeDirectory(t *testing.T) {
	t.Parallel()

	t.Run("success moves tracked directory", func(t *testing.T) {
		t.Parallel()

		conn := mock.NewConn()
		reg, s := connect(t, conn)
		conn.On("Run", mock.Anything, "cd '/home/op' 2>/dev/null; cd /tmp && pwd").Return(mock.Stdout("/tmp\n"), nil)

		res, err := reg.Executor().Execute(t.Context(), s, "cd /tmp", nil)
		require.NoError(t, err)

		assert.Equal(t, tunnel.StatusCompleted, res.Status)
		assert.Equal(t, tunnel.OutcomeDirectoryChanged, res.Outcome.Kind)
		assert.Equal(t, "directory changed: /home/op -> /tmp", res.Output)
		assert.Empty(t, res.ID)
		assert.Equal(t, "/tmp", reg.Executor().CurrentDirectory(s))
		conn.AssertNotCalled(t, "Open", mock.Anything, mock.Anything, mock.Anything)

		ch := mock.NewChannel()
		ch.Exit(0)
		conn.On("Open", mock.Anything, "cd '/tmp' && ls", mock.Anything).Return(ch, nil).Once()

		_, err = reg.Executor().Execute(t.Context(), s, "ls", nil)
		require.NoError(t, err)
		conn.AssertExpectations(t)
	})

	t.Run("refusal keeps tracked directory", func(t *testing.T) {
		t.Parallel()

		conn := mock.NewConn()
		reg, s := connect(t, conn)
		conn.On("Run", mock.Anything, "cd '/home/op' 2>/dev/null; cd /nope && pwd").
			Return(mock.Failed(1, "sh: cd: /nope: No such file or directory\n"), nil)

		res, err := reg.Executor().Execute(t.Context(), s, "cd /nope", nil)

		var dirErr *tunnel.DirectoryChangeError
		require.ErrorAs(t, err, &dirErr)
		assert.Equal(t, "/nope", dirErr.Path)
		assert.Equal(t, "sh: cd: /nope: No such file or directory", dirErr.Reason)

		require.NotNil(t, res)
		assert.Equal(t, tunnel.StatusFailed, res.Status)
		assert.Equal(t, -1, res.ExitCode)
		assert.Equal(t, "/home/op", reg.Executor().CurrentDirectory(s))
	})

	t.Run("transport fault is an execution error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("connection lost")
		conn := mock.NewConn()
		reg, s := connect(t, conn)
		conn.On("Run", mock.Anything, "cd '/home/op' 2>/dev/null; cd /tmp && pwd").Return(nil, boom)

		res, err := reg.Executor().Execute(t.Context(), s, "cd /tmp", nil)
		assert.Nil(t, res)

		var execErr *tunnel.ExecutionError
		require.ErrorAs(t, err, &execErr)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, "/home/op", reg.Executor().CurrentDirectory(s))
	})

	t.Run("compound cd passes through", func(t *testing.T) {
		t.Parallel()

		conn := mock.NewConn()
		reg, s := connect(t, conn)

		ch := mock.NewChannel()
		ch.Exit(0)
		expectOpen(conn, "cd /tmp && ls", ch)

		res, err := reg.Executor().Execute(t.Context(), s, "cd /tmp && ls", nil)
		require.NoError(t, err)
		assert.Equal(t, tunnel.OutcomePassThrough, res.Outcome.Kind)
		assert.Equal(t, "/home/op", reg.Executor().CurrentDirectory(s))
	})
}

func TestStop(t *testing.T) {
	t.Parallel()

	t.Run("idle session", func(t *testing.T) {
		t.Parallel()

		reg, s := connect(t, mock.NewConn())
		assert.False(t, reg.Executor().Stop(s))
	})

	t.Run("process honours interrupt", func(t *testing.T) {
		t.Parallel()

		conn := mock.NewConn()
		reg, s := connect(t, conn)

		ch := mock.NewChannel()
		ch.ExitOnInterrupt(130)
		expectOpen(conn, "tail -f log", ch)

		running := start(t.Context(), reg.Executor(), s, "tail -f log", nil)
		waitRunning(t, s)

		assert.True(t, reg.Executor().Stop(s))

		res, err := running.wait(t)
		require.NoError(t, err)

		assert.Equal(t, tunnel.StatusInterrupted, res.Status)
		assert.Equal(t, 130, res.ExitCode)
		assert.Contains(t, res.Output, "^C")
		assert.Contains(t, res.Output, "exit status: 130")
		assert.Equal(t, "\x03", ch.Written())
		assert.Nil(t, s.Active())
	})

	t.Run("process ignores interrupt", func(t *testing.T) {
		t.Parallel()

		conn := mock.NewConn()
		reg, s := connect(t, conn)

		ch := mock.NewChannel()
		expectOpen(conn, "stubborn", ch)

		running := start(t.Context(), reg.Executor(), s, "stubborn", nil)
		waitRunning(t, s)

		began := time.Now()
		assert.True(t, reg.Executor().Stop(s))
		assert.GreaterOrEqual(t, time.Since(began), 100*time.Millisecond)

		// The slot is free as soon as Stop returns.
		assert.Nil(t, s.Active())
		assert.True(t, ch.Closed())

		res, err := running.wait(t)
		require.NoError(t, err)
		assert.Equal(t, tunnel.StatusInterrupted, res.Status)
		assert.Equal(t, -1, res.ExitCode)
		assert.Contains(t, ch.Written(), "\x03")
	})
}

func TestSendInput(t *testing.T) {
	t.Parallel()

	t.Run("no active execution", func(t *testing.T) {
		t.Parallel()

		reg, s := connect(t, mock.NewConn())
		require.ErrorIs(t, reg.Executor().SendInput(s, "y"), tunnel.ErrNoActiveExecution)
	})

	t.Run("forwarded with note and snapshot", func(t *testing.T) {
		t.Parallel()

		conn := mock.NewConn()
		reg, s := connect(t, conn)

		ch := mock.NewChannel()
		ch.OnWrite(func(ch *mock.Channel, p []byte) {
			if string(p) == "yes\n" {
				ch.EmitStdout("got yes\n")
				ch.Exit(0)
			}
		})
		expectOpen(conn, "confirm", ch)

		var snaps snapshots

		running := start(t.Context(), reg.Executor(), s, "confirm", snaps.update)
		waitRunning(t, s)

		require.NoError(t, reg.Executor().SendInput(s, "yes"))

		res, err := running.wait(t)
		require.NoError(t, err)

		assert.Equal(t, "[input sent: yes]\ngot yes\n", res.Output)
		assert.Equal(t, "yes\n", ch.Written())
		assert.Contains(t, snaps.list(), "[input sent: yes]\n")
	})

	t.Run("held until writable", func(t *testing.T) {
		t.Parallel()

		conn := mock.NewConn()
		reg, s := connect(t, conn)

		ch := mock.NewChannel()
		ch.SetWriteReady(false)
		expectOpen(conn, "read a", ch)

		running := start(t.Context(), reg.Executor(), s, "read a", nil)
		waitRunning(t, s)

		require.NoError(t, reg.Executor().SendInput(s, "first"))
		require.NoError(t, reg.Executor().SendInput(s, "second"))

		assert.Never(t, func() bool { return ch.Written() != "" }, 50*time.Millisecond, 5*time.Millisecond)

		ch.SetWriteReady(true)

		require.Eventually(t, func() bool {
			return ch.Written() == "first\nsecond\n"
		}, 2*time.Second, time.Millisecond)

		ch.Exit(0)

		res, err := running.wait(t)
		require.NoError(t, err)
		assert.Equal(t, "[input sent: first]\n[input sent: second]\n", res.Output)
	})

	t.Run("queue full", func(t *testing.T) {
		t.Parallel()

		conn := mock.NewConn()
		reg, s := connect(t, conn, tunnel.WithInputQueueSize(1))

		ch := mock.NewChannel()
		ch.SetWriteReady(false)
		expectOpen(conn, "cat", ch)

		running := start(t.Context(), reg.Executor(), s, "cat", nil)
		waitRunning(t, s)

		require.NoError(t, reg.Executor().SendInput(s, "a"))
		require.ErrorIs(t, reg.Executor().SendInput(s, "b"), tunnel.ErrInputQueueFull)

		ch.Exit(0)

		_, err := running.wait(t)
		require.NoError(t, err)
	})

	t.Run("pending input dropped when execution ends", func(t *testing.T) {
		t.Parallel()

		conn := mock.NewConn()
		reg, s := connect(t, conn)

		first := mock.NewChannel()
		first.SetWriteReady(false)
		expectOpen(conn, "first", first)

		running := start(t.Context(), reg.Executor(), s, "first", nil)
		waitRunning(t, s)

		require.NoError(t, reg.Executor().SendInput(s, "stale"))
		first.Exit(0)

		_, err := running.wait(t)
		require.NoError(t, err)
		require.ErrorIs(t, reg.Executor().SendInput(s, "late"), tunnel.ErrNoActiveExecution)

		second := mock.NewChannel()
		second.OnWrite(func(ch *mock.Channel, _ []byte) { ch.Exit(0) })
		expectOpen(conn, "second", second)

		next := start(t.Context(), reg.Executor(), s, "second", nil)
		waitRunning(t, s)

		assert.Never(t, func() bool { return second.Written() != "" }, 30*time.Millisecond, 5*time.Millisecond)
		second.Exit(0)

		_, err = next.wait(t)
		require.NoError(t, err)
	})
}

func TestExecute_Faults(t *testing.T) {
	t.Parallel()

	t.Run("channel lost then session still usable", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("channel reset")
		conn := mock.NewConn()
		reg, s := connect(t, conn)

		broken := mock.NewChannel()
		broken.EmitStdout("partial")
		broken.Break(boom)
		expectOpen(conn, "flaky", broken)

		res, err := reg.Executor().Execute(t.Context(), s, "flaky", nil)

		var execErr *tunnel.ExecutionError
		require.ErrorAs(t, err, &execErr)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, tunnel.StatusFailed, res.Status)
		assert.Equal(t, -1, res.ExitCode)
		assert.Nil(t, s.Active())

		ok := mock.NewChannel()
		ok.EmitStdout("fine\n")
		ok.Exit(0)
		expectOpen(conn, "echo fine", ok)

		res, err = reg.Executor().Execute(t.Context(), s, "echo fine", nil)
		require.NoError(t, err)
		assert.Equal(t, "fine\n", res.Output)
	})

	t.Run("open failure", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("administratively prohibited")
		conn := mock.NewConn()
		reg, s := connect(t, conn)
		conn.On("Open", mock.Anything, "cd '/home/op' && ls", mock.Anything).Return(nil, boom)

		res, err := reg.Executor().Execute(t.Context(), s, "ls", nil)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, tunnel.StatusFailed, res.Status)
		assert.Equal(t, -1, res.ExitCode)
		assert.Nil(t, s.Active())
	})

	t.Run("exit without status", func(t *testing.T) {
		t.Parallel()

		conn := mock.NewConn()
		reg, s := connect(t, conn)

		ch := mock.NewChannel()
		ch.EmitStdout("partial")
		ch.Vanish()
		expectOpen(conn, "killed", ch)

		res, err := reg.Executor().Execute(t.Context(), s, "killed", nil)
		require.ErrorIs(t, err, mock.ErrNoExitStatus)
		assert.Equal(t, tunnel.StatusFailed, res.Status)
		assert.Equal(t, "partial", res.Output)
	})

	t.Run("context cancellation interrupts", func(t *testing.T) {
		t.Parallel()

		conn := mock.NewConn()
		reg, s := connect(t, conn)

		ch := mock.NewChannel()
		expectOpen(conn, "sleep 60", ch)

		ctx, cancel := context.WithCancel(t.Context())
		running := start(ctx, reg.Executor(), s, "sleep 60", nil)
		waitRunning(t, s)

		cancel()

		res, err := running.wait(t)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, tunnel.StatusInterrupted, res.Status)
		assert.Equal(t, "\x03", ch.Written())
		assert.True(t, ch.Closed())
		assert.Nil(t, s.Active())
	})
}

// chunkChannel yields one chunk per ReadStdout and exits after the last one.
type chunkChannel struct {
	*mock.Channel

	chunks []string
	next   int
}

func (c *chunkChannel) ReadStdout() ([]byte, error) {
	if c.next >= len(c.chunks) {
		return nil, nil
	}

	chunk := c.chunks[c.next]
	c.next++

	return []byte(chunk), nil
}

func (c *chunkChannel) Exited() bool {
	return c.next >= len(c.chunks)
}

func (c *chunkChannel) ExitCode() (int, error) {
	return 0, nil
}

func TestExecute_SnapshotsAreCumulative(t *testing.T) {
	t.Parallel()

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 25

	properties := gopter.NewProperties(params)

	properties.Property("every snapshot extends the previous one", prop.ForAll(
		func(chunks []string) bool {
			conn := mock.NewConn()
			reg, s := connect(t, conn, tunnel.WithPollInterval(time.Millisecond), tunnel.WithSnapshotInterval(time.Nanosecond))

			ch := &chunkChannel{Channel: mock.NewChannel(), chunks: chunks}
			expectOpen(conn, "stream", ch)

			var snaps snapshots

			res, err := reg.Executor().Execute(context.Background(), s, "stream", snaps.update)
			if err != nil || res.Output != strings.Join(chunks, "") {
				return false
			}

			prev := ""

			for _, snap := range snaps.list() {
				if len(snap) <= len(prev) || !strings.HasPrefix(snap, prev) {
					return false
				}

				prev = snap
			}

			return strings.HasPrefix(res.Output, prev)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
