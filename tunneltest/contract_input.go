package tunneltest

import (
	"time"

	"github.com/ruffel/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contractTimeout = 10 * time.Second

// await waits for a background command to finish.
func await(t T, out <-chan Outcome) Outcome {
	select {
	case o := <-out:
		return o
	case <-time.After(contractTimeout):
		t.Errorf("command did not finish within %s", contractTimeout)
		t.FailNow()

		return Outcome{}
	}
}

func inputContracts() []TestCase {
	return []TestCase{
		{
			Category:    CategoryInput,
			Name:        "input-reaches-process",
			Description: "Queued input is written to the running process and noted in the output",
			Run: func(t T, s Session) {
				out := s.Start(t, "read answer; echo got:$answer")

				require.NoError(t, s.Manager.SendInput(s.Identity, "yes"))

				o := await(t, out)
				require.NoError(t, o.Err)
				assert.Equal(t, tunnel.StatusCompleted, o.Result.Status)
				assert.Contains(t, o.Result.Output, "[input sent: yes]")
				assert.Contains(t, o.Result.Output, "got:yes")
			},
		},
		{
			Category:    CategoryInput,
			Name:        "input-is-fifo",
			Description: "Several queued lines arrive in the order they were sent",
			Run: func(t T, s Session) {
				out := s.Start(t, "read a; read b; echo order:$a,$b")

				require.NoError(t, s.Manager.SendInput(s.Identity, "first"))
				require.NoError(t, s.Manager.SendInput(s.Identity, "second"))

				o := await(t, out)
				require.NoError(t, o.Err)
				assert.Contains(t, o.Result.Output, "order:first,second")
			},
		},
	}
}
