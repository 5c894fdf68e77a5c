package tunneltest

import (
	"github.com/ruffel/tunnel"
	"github.com/stretchr/testify/require"
)

func errorContracts() []TestCase {
	return []TestCase{
		{
			Category:    CategoryErrors,
			Name:        "busy",
			Description: "A second command while one is running is rejected with ErrBusy",
			Run: func(t T, s Session) {
				out := s.Start(t, "sleep 30")

				_, _, err := s.Execute(t.Context(), "echo second")
				require.ErrorIs(t, err, tunnel.ErrBusy)

				_, err = s.Manager.Stop(s.Identity)
				require.NoError(t, err)

				await(t, out)
			},
		},
		{
			Category:    CategoryErrors,
			Name:        "input-without-command",
			Description: "SendInput with nothing running is rejected",
			Run: func(t T, s Session) {
				err := s.Manager.SendInput(s.Identity, "hello")
				require.ErrorIs(t, err, tunnel.ErrNoActiveExecution)
			},
		},
		{
			Category:    CategoryErrors,
			Name:        "empty-command",
			Description: "A blank command is rejected without touching the transport",
			Run: func(t T, s Session) {
				_, _, err := s.Execute(t.Context(), "   ")
				require.ErrorIs(t, err, tunnel.ErrEmptyCommand)
			},
		},
	}
}
