package mock

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/ruffel/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMockConn(t *testing.T) {
	t.Parallel()

	conn := NewConn()
	ctx := context.Background()

	conn.On("Run", ctx, "pwd").Return(Stdout("/home/op\n"), nil)

	res, err := conn.Run(ctx, "pwd")
	require.NoError(t, err)
	assert.Equal(t, "/home/op\n", string(res.Stdout))
	assert.True(t, res.Success())

	conn.On("Upload", ctx, "src", "dst", mock.Anything).Return(nil)

	err = conn.Upload(ctx, "src", "dst")
	require.NoError(t, err)

	conn.AssertExpectations(t)
}

func TestMockDialer(t *testing.T) {
	t.Parallel()

	d := NewDialer()
	target := tunnel.Target{Host: "example.com", Port: 22, User: "op"}
	conn := NewConn()

	d.On("Dial", mock.Anything, target).Return(conn, nil).Once()
	d.On("Dial", mock.Anything, target).Return(nil, errors.New("refused"))

	got, err := d.Dial(context.Background(), target)
	require.NoError(t, err)
	assert.Same(t, conn, got)

	_, err = d.Dial(context.Background(), target)
	require.Error(t, err)
}

func TestChannel_Drains(t *testing.T) {
	t.Parallel()

	ch := NewChannel()
	ch.EmitStdout("a")
	ch.EmitStdout("b")
	ch.EmitStderr("oops")

	out, err := ch.ReadStdout()
	require.NoError(t, err)
	assert.Equal(t, "ab", string(out))

	out, err = ch.ReadStdout()
	require.NoError(t, err)
	assert.Empty(t, out)

	errOut, err := ch.ReadStderr()
	require.NoError(t, err)
	assert.Equal(t, "oops", string(errOut))
}

func TestChannel_ExitOnInterrupt(t *testing.T) {
	t.Parallel()

	ch := NewChannel()
	ch.ExitOnInterrupt(130)

	_, err := ch.Write([]byte("y\n"))
	require.NoError(t, err)
	assert.False(t, ch.Exited())

	_, err = ch.Write([]byte{0x03})
	require.NoError(t, err)
	assert.True(t, ch.Exited())

	code, err := ch.ExitCode()
	require.NoError(t, err)
	assert.Equal(t, 130, code)
	assert.Equal(t, "y\n\x03", ch.Written())
}

func TestChannel_Closed(t *testing.T) {
	t.Parallel()

	ch := NewChannel()
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	assert.True(t, ch.Closed())
	assert.Equal(t, 2, ch.CloseCount())
	assert.False(t, ch.WriteReady())

	_, err := ch.ReadStdout()
	require.ErrorIs(t, err, io.ErrClosedPipe)

	_, err = ch.Write([]byte("x"))
	require.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestChannel_Vanish(t *testing.T) {
	t.Parallel()

	ch := NewChannel()
	ch.Vanish()

	assert.True(t, ch.Exited())

	_, err := ch.ExitCode()
	require.ErrorIs(t, err, ErrNoExitStatus)
}
