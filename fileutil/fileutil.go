// Package fileutil holds the file-transfer helpers shared by tunnel providers:
// progress reporting, cancellable copies and path containment checks.
package fileutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ruffel/tunnel"
)

// ProgressReader wraps an io.Reader to report progress via an tunnel.ProgressFunc.
// Total should be set to the known total size for percentage-based progress reporting,
// or 0 if unknown.
type ProgressReader struct {
	io.Reader

	Total   int64
	Current int64
	Fn      tunnel.ProgressFunc
}

// Read reads from the underlying reader and reports progress.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.Current += int64(n)
		if pr.Fn != nil {
			pr.Fn(pr.Current, pr.Total)
		}
	}

	return n, err
}

// ContextReader fails the next Read once Ctx is done, so io.Copy stops early.
type ContextReader struct {
	Ctx    context.Context //nolint:containedctx
	Reader io.Reader
}

// Read checks for context cancellation before delegating to the underlying reader.
func (cr *ContextReader) Read(p []byte) (int, error) {
	if cr.Ctx.Err() != nil {
		return 0, cr.Ctx.Err()
	}

	return cr.Reader.Read(p)
}

// CheckPathTraversal returns an error if the local path target escapes root.
func CheckPathTraversal(root, target string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("illegal file path: cannot resolve root %s: %w", root, err)
	}

	absTarget, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("illegal file path: cannot resolve target %s: %w", target, err)
	}

	if absRoot == absTarget {
		return nil
	}

	if !strings.HasPrefix(absTarget, withSeparator(absRoot, string(os.PathSeparator))) {
		return fmt.Errorf("illegal file path: %s is not within %s", target, root)
	}

	return nil
}

// CheckRemotePathTraversal is CheckPathTraversal for slash-separated remote paths.
func CheckRemotePathTraversal(root, target string) error {
	cleanRoot := path.Clean(root)
	cleanTarget := path.Clean(target)

	if cleanRoot == cleanTarget {
		return nil
	}

	if !strings.HasPrefix(cleanTarget, withSeparator(cleanRoot, "/")) {
		return fmt.Errorf("illegal remote file path: %s is not within %s", target, root)
	}

	return nil
}

// withSeparator appends sep unless root is a filesystem root that already ends with it.
func withSeparator(root, sep string) string {
	if strings.HasSuffix(root, sep) {
		return root
	}

	return root + sep
}

// Copy copies src to dst, stopping when ctx is done and reporting progress when fn is set.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, total int64, fn tunnel.ProgressFunc) (int64, error) {
	var r io.Reader = &ContextReader{Ctx: ctx, Reader: src}
	if fn != nil {
		r = &ProgressReader{Reader: r, Total: total, Fn: fn}
	}

	return io.Copy(dst, r)
}
