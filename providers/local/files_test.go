package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruffel/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTransfer(t *testing.T) {
	t.Parallel()

	conn := dial(t)
	ctx := context.Background()

	tmpDir := t.TempDir()
	srcFile := filepath.Join(tmpDir, "source.txt")
	content := []byte("hello file transfer")

	require.NoError(t, os.WriteFile(srcFile, content, 0o644))

	t.Run("upload creates parents and applies permissions", func(t *testing.T) {
		t.Parallel()

		dstFile := filepath.Join(tmpDir, "dest", "nested", "target.txt")

		var last int64

		err := conn.Upload(ctx, srcFile, dstFile,
			tunnel.WithPermissions(0o600),
			tunnel.WithProgress(func(current, _ int64) { last = current }),
		)
		require.NoError(t, err)

		got, err := os.ReadFile(dstFile)
		require.NoError(t, err)
		assert.Equal(t, content, got)
		assert.Equal(t, int64(len(content)), last)

		info, err := os.Stat(dstFile)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("download directory", func(t *testing.T) {
		t.Parallel()

		srcDir := filepath.Join(tmpDir, "tree")
		require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "a", "b"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a", "b", "leaf.txt"), content, 0o644))

		dstDir := filepath.Join(tmpDir, "tree-copy")
		require.NoError(t, conn.Download(ctx, srcDir, dstDir))

		got, err := os.ReadFile(filepath.Join(dstDir, "a", "b", "leaf.txt"))
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("missing source", func(t *testing.T) {
		t.Parallel()

		err := conn.Upload(ctx, filepath.Join(tmpDir, "nope"), filepath.Join(tmpDir, "x"))
		require.Error(t, err)
	})

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		err := conn.Upload(canceled, srcFile, filepath.Join(tmpDir, "canceled.txt"))
		require.ErrorIs(t, err, context.Canceled)
	})
}
