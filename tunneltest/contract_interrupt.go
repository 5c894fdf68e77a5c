package tunneltest

import (
	"time"

	"github.com/ruffel/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func interruptContracts() []TestCase {
	return []TestCase{
		{
			Category:    CategoryInterrupt,
			Name:        "stop-frees-slot",
			Description: "Stop ends a long command as interrupted and the session accepts a new one",
			Run: func(t T, s Session) {
				out := s.Start(t, "sleep 30")

				started := time.Now()

				cmd, err := s.Manager.Stop(s.Identity)
				require.NoError(t, err)
				assert.Equal(t, "sleep 30", cmd)

				o := await(t, out)
				assert.Equal(t, tunnel.StatusInterrupted, o.Result.Status)
				assert.Less(t, time.Since(started), contractTimeout)

				res, _, err := s.Execute(t.Context(), "echo after")
				require.NoError(t, err)
				assert.Contains(t, res.Output, "after")
			},
		},
		{
			Category:    CategoryInterrupt,
			Name:        "stop-when-idle",
			Description: "Stop without a running command reports that nothing is active",
			Run: func(t T, s Session) {
				_, err := s.Manager.Stop(s.Identity)
				require.ErrorIs(t, err, tunnel.ErrNoActiveExecution)
			},
		},
	}
}
