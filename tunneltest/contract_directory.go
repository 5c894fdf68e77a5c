package tunneltest

import (
	"strings"

	"github.com/ruffel/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scratchDir creates a per-test directory on the target and returns its path.
func scratchDir(t T, s Session) string {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dir := "/tmp/tunnel-test-" + name

	res, _, err := s.Execute(t.Context(), "rm -rf '"+dir+"' && mkdir -p '"+dir+"/sub'")
	require.NoError(t, err)
	require.True(t, res.Success(), "creating %s: %s", dir, res.Output)

	return dir
}

func directoryContracts() []TestCase {
	return []TestCase{
		{
			Category:    CategoryDirectory,
			Name:        "cd-persists",
			Description: "A successful cd moves the tracked directory and later commands run there",
			Run: func(t T, s Session) {
				dir := scratchDir(t, s)

				res, _, err := s.Execute(t.Context(), "cd "+dir+"/sub")
				require.NoError(t, err)
				assert.Equal(t, tunnel.OutcomeDirectoryChanged, res.Outcome.Kind)
				assert.Equal(t, dir+"/sub", res.Outcome.New)
				assert.Contains(t, res.Output, "directory changed: ")

				cwd, err := s.Manager.CurrentDirectory(s.Identity)
				require.NoError(t, err)
				assert.Equal(t, dir+"/sub", cwd)

				res, _, err = s.Execute(t.Context(), "pwd")
				require.NoError(t, err)
				assert.Contains(t, res.Output, dir+"/sub")

				res, _, err = s.Execute(t.Context(), "cd ..")
				require.NoError(t, err)
				assert.Equal(t, dir, res.Outcome.New)
			},
		},
		{
			Category:    CategoryDirectory,
			Name:        "cd-failure-keeps-directory",
			Description: "A refused cd reports failure and leaves the tracked directory alone",
			Run: func(t T, s Session) {
				before, err := s.Manager.CurrentDirectory(s.Identity)
				require.NoError(t, err)

				res, _, err := s.Execute(t.Context(), "cd /definitely/not/a/real/dir")

				var dirErr *tunnel.DirectoryChangeError
				require.ErrorAs(t, err, &dirErr)
				require.NotNil(t, res)
				assert.Equal(t, tunnel.StatusFailed, res.Status)
				assert.Equal(t, tunnel.OutcomeDirectoryChangeFailed, res.Outcome.Kind)

				after, err := s.Manager.CurrentDirectory(s.Identity)
				require.NoError(t, err)
				assert.Equal(t, before, after)
			},
		},
		{
			Category:    CategoryDirectory,
			Name:        "compound-cd-not-tracked",
			Description: "A cd inside a compound command only affects that invocation",
			Run: func(t T, s Session) {
				dir := scratchDir(t, s)

				_, _, err := s.Execute(t.Context(), "cd "+dir)
				require.NoError(t, err)

				res, _, err := s.Execute(t.Context(), "cd sub && pwd")
				require.NoError(t, err)
				assert.Equal(t, tunnel.OutcomePassThrough, res.Outcome.Kind)
				assert.Contains(t, res.Output, dir+"/sub")

				cwd, err := s.Manager.CurrentDirectory(s.Identity)
				require.NoError(t, err)
				assert.Equal(t, dir, cwd)
			},
		},
		{
			Category:    CategoryDirectory,
			Name:        "cd-dash-returns",
			Description: "cd - returns to the previous tracked directory",
			Run: func(t T, s Session) {
				dir := scratchDir(t, s)

				_, _, err := s.Execute(t.Context(), "cd "+dir)
				require.NoError(t, err)

				_, _, err = s.Execute(t.Context(), "cd sub")
				require.NoError(t, err)

				res, _, err := s.Execute(t.Context(), "cd -")
				require.NoError(t, err)
				assert.Equal(t, dir, res.Outcome.New)
			},
		},
		{
			Category:    CategoryDirectory,
			Name:        "quoted-path",
			Description: "Directories containing spaces and quotes are tracked and re-entered",
			Run: func(t T, s Session) {
				dir := scratchDir(t, s)
				odd := dir + "/it's a dir"

				res, _, err := s.Execute(t.Context(), `mkdir -p "`+odd+`"`)
				require.NoError(t, err)
				require.True(t, res.Success(), res.Output)

				res, _, err = s.Execute(t.Context(), `cd "`+odd+`"`)
				require.NoError(t, err)
				assert.Equal(t, odd, res.Outcome.New)

				res, _, err = s.Execute(t.Context(), "pwd")
				require.NoError(t, err)
				assert.Contains(t, res.Output, odd)
			},
		},
	}
}
