package tunnel

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		hostPort string
		user     string
		want     Target
		wantErr  bool
	}{
		{
			name:     "host only uses default port",
			hostPort: "example.com",
			user:     "op",
			want:     Target{Host: "example.com", Port: 22, User: "op", Password: "pw"},
		},
		{
			name:     "explicit port",
			hostPort: "10.0.0.1:2222",
			user:     "op",
			want:     Target{Host: "10.0.0.1", Port: 2222, User: "op", Password: "pw"},
		},
		{
			name:     "ipv6 with port",
			hostPort: "[::1]:2200",
			user:     "op",
			want:     Target{Host: "::1", Port: 2200, User: "op", Password: "pw"},
		},
		{
			name:     "bracketed ipv6 without port",
			hostPort: "[fe80::1]",
			user:     "op",
			want:     Target{Host: "fe80::1", Port: 22, User: "op", Password: "pw"},
		},
		{
			name:     "empty",
			hostPort: "  ",
			user:     "op",
			wantErr:  true,
		},
		{
			name:     "bad port",
			hostPort: "example.com:ssh",
			user:     "op",
			wantErr:  true,
		},
		{
			name:     "port out of range",
			hostPort: "example.com:70000",
			user:     "op",
			wantErr:  true,
		},
		{
			name:     "missing user",
			hostPort: "example.com",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTarget(tt.hostPort, tt.user, "pw")
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTarget_String(t *testing.T) {
	t.Parallel()

	target := Target{Host: "::1", Port: 2200, User: "op", Password: "secret"}

	assert.Equal(t, "op@[::1]:2200", target.String())
	assert.Equal(t, "[::1]:2200", target.Addr())
	assert.NotContains(t, fmt.Sprint(target.String()), "secret")
	assert.Equal(t, "example.com:22", Target{Host: "example.com"}.String())
}

func TestStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   Status
		name     string
		terminal bool
	}{
		{StatusStarting, "starting", false},
		{StatusRunning, "running", false},
		{StatusDraining, "draining", false},
		{StatusCompleted, "completed", true},
		{StatusInterrupted, "interrupted", true},
		{StatusFailed, "failed", true},
		{Status(42), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.name, tt.status.String())
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestExecResult_Success(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result ExecResult
		want   bool
	}{
		{"completed zero", ExecResult{Status: StatusCompleted}, true},
		{"completed non-zero", ExecResult{Status: StatusCompleted, ExitCode: 1}, false},
		{"interrupted", ExecResult{Status: StatusInterrupted, ExitCode: -1}, false},
		{"failed", ExecResult{Status: StatusFailed, ExitCode: -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.result.Success())
		})
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")

	timeout := fmt.Errorf("dial: %w", &TimeoutError{Phase: "banner exchange", After: 10 * time.Second})
	require.ErrorIs(t, timeout, ErrTimeout)
	assert.Equal(t, "dial: banner exchange timed out after 10s", timeout.Error())

	transport := &TransportError{Op: "connect", Err: cause}
	require.ErrorIs(t, transport, cause)
	assert.Equal(t, "transport error during connect: connection reset", transport.Error())
	assert.Equal(t, "transport error: connection reset", (&TransportError{Err: cause}).Error())

	auth := &AuthenticationError{User: "op", Addr: "host:22", Err: cause}
	require.ErrorIs(t, auth, cause)

	exec := &ExecutionError{Command: "ls", Err: cause}
	require.ErrorIs(t, exec, cause)
	assert.Contains(t, exec.Error(), `"ls"`)

	dir := &DirectoryChangeError{Path: "/nope", Reason: "No such file or directory"}
	assert.Equal(t, `failed to change directory to "/nope": No such file or directory`, dir.Error())
}
