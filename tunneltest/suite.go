package tunneltest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ruffel/tunnel"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Standard categories for grouping tests.
const (
	CategoryCore      = "core"
	CategoryDirectory = "directory"
	CategoryInput     = "input"
	CategoryInterrupt = "interrupt"
	CategoryFiles     = "files"
	CategoryErrors    = "errors"
)

// T is the minimal interface required for testify/assert and require.
type T interface {
	Errorf(format string, args ...any)
	FailNow()
	Skipf(format string, args ...any)
	Context() context.Context
	TempDir() string
	Name() string
}

// Session is a connected identity handed to each contract.
type Session struct {
	Manager  *tunnel.Manager
	Identity string
}

// Execute runs command and collects every snapshot delivered on the way.
func (s Session) Execute(ctx context.Context, command string) (*tunnel.ExecResult, []string, error) {
	var snapshots []string

	res, err := s.Manager.Execute(ctx, s.Identity, command, func(_, output string) {
		snapshots = append(snapshots, output)
	})

	return res, snapshots, err
}

// Start runs command in the background and waits until it holds the session.
// The returned channel yields the result once the command finishes.
func (s Session) Start(t T, command string) <-chan Outcome {
	out := make(chan Outcome, 1)

	go func() {
		res, err := s.Manager.Execute(context.Background(), s.Identity, command, nil)
		out <- Outcome{Result: res, Err: err}
	}()

	require.Eventually(t, func() bool {
		info, err := s.Manager.Status(s.Identity)

		return err == nil && info.Active != nil && info.Active.Status == tunnel.StatusRunning
	}, 5*time.Second, 10*time.Millisecond, "command %q never started", command)

	return out
}

// Outcome is what a background Execute returned.
type Outcome struct {
	Result *tunnel.ExecResult
	Err    error
}

// TestCase defines a single behavioral contract requirement.
type TestCase struct {
	Category    string
	Name        string
	Description string
	Run         func(t T, s Session)
}

// ID returns the stable, globally unique contract identifier.
func (tc TestCase) ID() string {
	return fmt.Sprintf("%s/%s", tc.Category, tc.Name)
}

// Verify is the standard Go test entry point for transport authors. Every
// contract gets its own Manager and session, connected to target through dialer.
func Verify(t *testing.T, dialer tunnel.Dialer, target tunnel.Target, opts ...tunnel.Option) {
	t.Helper()

	for _, tc := range AllContracts() {
		t.Run(tc.ID(), func(t *testing.T) {
			t.Parallel()

			options := append([]tunnel.Option{tunnel.WithLogger(zaptest.NewLogger(t))}, opts...)

			m, err := tunnel.NewManager(dialer, options...)
			require.NoError(t, err)

			identity := t.Name()

			_, err = m.Connect(t.Context(), identity, target)
			require.NoError(t, err)

			t.Cleanup(func() { _ = m.Close(context.Background()) })

			tc.Run(t, Session{Manager: m, Identity: identity})
		})
	}
}
