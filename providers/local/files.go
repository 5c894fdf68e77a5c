package local

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ruffel/tunnel"
	"github.com/ruffel/tunnel/fileutil"
)

// Upload copies a local file/dir to the destination path (also local).
func (c *Conn) Upload(ctx context.Context, localPath, remotePath string, opts ...tunnel.FileOption) error {
	if c.isClosed() {
		return ErrClosed
	}

	cfg := tunnel.NewFileConfig(opts...)

	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return copyDir(ctx, localPath, remotePath, cfg)
	}

	mode := info.Mode()
	if cfg.Permissions != 0 {
		mode = cfg.Permissions
	}

	return copyFile(ctx, localPath, remotePath, mode, cfg.Progress)
}

// Download copies a remote file/dir to the destination path (also local).
func (c *Conn) Download(ctx context.Context, remotePath, localPath string, opts ...tunnel.FileOption) error {
	// For local provider, this is symmetric to Upload.
	return c.Upload(ctx, remotePath, localPath, opts...)
}

func copyDir(ctx context.Context, src, dst string, cfg tunnel.FileConfig) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		targetPath := filepath.Join(dst, relPath)

		if err := fileutil.CheckPathTraversal(dst, targetPath); err != nil {
			return err
		}

		if info.IsDir() {
			return os.MkdirAll(targetPath, info.Mode())
		}

		mode := info.Mode()
		if cfg.Permissions != 0 {
			mode = cfg.Permissions
		}

		return copyFile(ctx, path, targetPath, mode, cfg.Progress)
	})
}

func copyFile(ctx context.Context, src, dst string, mode os.FileMode, progress tunnel.ProgressFunc) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}

	defer func() { _ = sourceFile.Close() }()

	var size int64
	if info, err := sourceFile.Stat(); err == nil {
		size = info.Size()
	}

	// Ensure parent exists
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	destFile, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	defer func() { _ = destFile.Close() }()

	if _, err := fileutil.Copy(ctx, destFile, sourceFile, size, progress); err != nil {
		return err
	}

	if err := destFile.Chmod(mode); err != nil {
		return err
	}

	if err := destFile.Sync(); err != nil {
		return err
	}

	return destFile.Close()
}
