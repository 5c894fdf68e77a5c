package tunnel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	c := Config{}.WithDefaults()

	assert.Equal(t, 50*time.Millisecond, c.PollInterval)
	assert.Equal(t, 300*time.Millisecond, c.SnapshotInterval)
	assert.Equal(t, 500*time.Millisecond, c.InterruptGrace)
	assert.Equal(t, 64, c.InputQueueSize)
	assert.Equal(t, PtyRequest{Term: "xterm", Cols: 80, Rows: 24}, c.Pty)
	assert.Equal(t, 1, c.DialAttempts)
	assert.NotNil(t, c.Logger)
}

func TestNewConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []Option
		check   func(t *testing.T, c Config)
		wantErr bool
	}{
		{
			name: "options applied",
			opts: []Option{
				WithPollInterval(10 * time.Millisecond),
				WithSnapshotInterval(time.Second),
				WithInterruptGrace(2 * time.Second),
				WithInputQueueSize(3),
				WithPty(PtyRequest{Term: "vt100", Cols: 132, Rows: 50}),
				WithDialRetry(3, time.Second),
				WithLogger(zap.NewExample()),
			},
			check: func(t *testing.T, c Config) {
				t.Helper()
				assert.Equal(t, 10*time.Millisecond, c.PollInterval)
				assert.Equal(t, time.Second, c.SnapshotInterval)
				assert.Equal(t, 2*time.Second, c.InterruptGrace)
				assert.Equal(t, 3, c.InputQueueSize)
				assert.Equal(t, "vt100", c.Pty.Term)
				assert.Equal(t, 3, c.DialAttempts)
				assert.Equal(t, time.Second, c.DialDelay)
			},
		},
		{
			name: "retry attempts clamped",
			opts: []Option{WithDialRetry(0, 0)},
			check: func(t *testing.T, c Config) {
				t.Helper()
				assert.Equal(t, 1, c.DialAttempts)
			},
		},
		{
			name: "whole config keeps defaults for zero fields",
			opts: []Option{WithConfig(Config{InputQueueSize: 8})},
			check: func(t *testing.T, c Config) {
				t.Helper()
				assert.Equal(t, 8, c.InputQueueSize)
				assert.Equal(t, 50*time.Millisecond, c.PollInterval)
				assert.NotNil(t, c.Logger)
			},
		},
		{
			name:    "negative duration",
			opts:    []Option{WithInterruptGrace(-time.Second)},
			wantErr: true,
		},
		{
			name:    "negative queue",
			opts:    []Option{WithInputQueueSize(-1)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := newConfig(tt.opts)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestNewFileConfig(t *testing.T) {
	t.Parallel()

	var called bool

	c := NewFileConfig(WithPermissions(0o600), WithProgress(func(_, _ int64) { called = true }))

	assert.Equal(t, 0o600, int(c.Permissions))
	require.NotNil(t, c.Progress)

	c.Progress(1, 2)
	assert.True(t, called)
}
