package tunneltest

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/ruffel/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileContracts() []TestCase {
	return []TestCase{
		{
			Category:    CategoryFiles,
			Name:        "relative-paths-follow-cd",
			Description: "Relative remote paths resolve against the tracked directory",
			Run: func(t T, s Session) {
				dir := scratchDir(t, s)

				_, _, err := s.Execute(t.Context(), "cd "+dir)
				require.NoError(t, err)

				content := "hello from tunnel"
				src := filepath.Join(t.TempDir(), "src.txt")
				require.NoError(t, os.WriteFile(src, []byte(content), 0o644))

				err = s.Manager.Upload(t.Context(), s.Identity, src, "sub/uploaded.txt", tunnel.WithPermissions(0o600))
				if errors.Is(err, tunnel.ErrNotSupported) {
					t.Skipf("transport does not support file transfer")
				}

				require.NoError(t, err)

				res, _, err := s.Execute(t.Context(), "cat sub/uploaded.txt")
				require.NoError(t, err)
				assert.Contains(t, res.Output, content)

				dst := filepath.Join(t.TempDir(), "dst.txt")
				require.NoError(t, s.Manager.Download(t.Context(), s.Identity, dir+"/sub/uploaded.txt", dst))

				got, err := os.ReadFile(dst)
				require.NoError(t, err)
				assert.Equal(t, content, string(got))
			},
		},
		{
			Category:    CategoryFiles,
			Name:        "upload-missing-source",
			Description: "Uploading a missing local file fails",
			Run: func(t T, s Session) {
				src := filepath.Join(t.TempDir(), "this-file-really-does-not-exist-12345")

				err := s.Manager.Upload(t.Context(), s.Identity, src, "/tmp/should-not-exist-12345")
				require.Error(t, err)
			},
		},
	}
}
