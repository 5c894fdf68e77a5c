package tunneltest

import (
	"strings"

	"github.com/ruffel/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exitStatusCode = 7

func coreContracts() []TestCase {
	return []TestCase{
		{
			Category:    CategoryCore,
			Name:        "simple-echo",
			Description: "A command's output is returned and the execution completes",
			Run: func(t T, s Session) {
				res, _, err := s.Execute(t.Context(), "echo hello")
				require.NoError(t, err)
				require.NotNil(t, res)

				assert.Equal(t, tunnel.StatusCompleted, res.Status)
				assert.Equal(t, tunnel.OutcomePassThrough, res.Outcome.Kind)
				assert.Equal(t, 0, res.ExitCode)
				assert.Contains(t, res.Output, "hello")
			},
		},
		{
			Category:    CategoryCore,
			Name:        "nonzero-exit-is-output",
			Description: "A non-zero exit completes normally and is appended to the output",
			Run: func(t T, s Session) {
				res, _, err := s.Execute(t.Context(), "echo before; exit 7")
				require.NoError(t, err)

				assert.Equal(t, tunnel.StatusCompleted, res.Status)
				assert.Equal(t, exitStatusCode, res.ExitCode)
				assert.True(t, strings.HasSuffix(res.Output, "\n\nexit status: 7"), "output: %q", res.Output)
			},
		},
		{
			Category:    CategoryCore,
			Name:        "snapshots-are-cumulative",
			Description: "Every snapshot extends the previous one and the final output extends the last",
			Run: func(t T, s Session) {
				res, snapshots, err := s.Execute(t.Context(), "for i in 1 2 3; do echo line$i; sleep 0.4; done")
				require.NoError(t, err)

				require.NotEmpty(t, snapshots)

				prev := ""
				for _, snap := range snapshots {
					assert.True(t, strings.HasPrefix(snap, prev), "snapshot %q does not extend %q", snap, prev)
					prev = snap
				}

				assert.True(t, strings.HasPrefix(res.Output, prev))
				assert.Contains(t, res.Output, "line3")
			},
		},
	}
}
