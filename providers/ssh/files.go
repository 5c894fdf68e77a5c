package ssh

import (
	"context"
	"fmt"
	"os"
	pathpkg "path"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
	"github.com/ruffel/tunnel"
	"github.com/ruffel/tunnel/fileutil"
)

func (c *Conn) sftpClient() (*sftp.Client, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return nil, ErrClosed
	}

	client, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}

	return client, nil
}

// Upload copies a local file/dir to the remote path using SFTP.
func (c *Conn) Upload(ctx context.Context, localPath, remotePath string, opts ...tunnel.FileOption) error {
	cfg := tunnel.NewFileConfig(opts...)

	client, err := c.sftpClient()
	if err != nil {
		return err
	}

	defer func() { _ = client.Close() }()

	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return uploadDir(ctx, client, localPath, remotePath, cfg)
	}

	if err := client.MkdirAll(pathpkg.Dir(remotePath)); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}

	mode := info.Mode()
	if cfg.Permissions != 0 {
		mode = cfg.Permissions
	}

	return uploadFile(ctx, client, localPath, remotePath, mode, cfg.Progress)
}

func uploadDir(ctx context.Context, client *sftp.Client, localBase, remoteBase string, cfg tunnel.FileConfig) error {
	return filepath.Walk(localBase, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(localBase, path)
		if err != nil {
			return err
		}

		remotePath := pathpkg.Join(remoteBase, filepath.ToSlash(relPath))
		if err := fileutil.CheckRemotePathTraversal(remoteBase, remotePath); err != nil {
			return err
		}

		if info.IsDir() {
			if err := client.MkdirAll(remotePath); err != nil {
				return err
			}

			if cfg.Permissions != 0 {
				_ = client.Chmod(remotePath, cfg.Permissions)
			}

			return nil
		}

		mode := info.Mode()
		if cfg.Permissions != 0 {
			mode = cfg.Permissions
		}

		return uploadFile(ctx, client, path, remotePath, mode, cfg.Progress)
	})
}

func uploadFile(ctx context.Context, client *sftp.Client, localPath, remotePath string, mode os.FileMode, progress tunnel.ProgressFunc) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}

	defer func() { _ = src.Close() }()

	var size int64
	if info, err := src.Stat(); err == nil {
		size = info.Size()
	}

	dst, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file %q: %w", remotePath, err)
	}

	defer func() { _ = dst.Close() }()

	if err := client.Chmod(remotePath, mode); err != nil {
		return fmt.Errorf("failed to chmod remote file: %w", err)
	}

	_, err = fileutil.Copy(ctx, dst, src, size, progress)

	return err
}

// Download copies a remote file/dir to the local path using SFTP.
func (c *Conn) Download(ctx context.Context, remotePath, localPath string, opts ...tunnel.FileOption) error {
	cfg := tunnel.NewFileConfig(opts...)

	client, err := c.sftpClient()
	if err != nil {
		return err
	}

	defer func() { _ = client.Close() }()

	info, err := client.Stat(remotePath)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return downloadDir(ctx, client, remotePath, localPath, cfg.Progress)
	}

	mode := info.Mode()
	if cfg.Permissions != 0 {
		mode = cfg.Permissions
	}

	return downloadFile(ctx, client, remotePath, localPath, mode, cfg.Progress)
}

// remoteRel returns p relative to base, refusing paths outside base.
func remoteRel(base, p string) (string, error) {
	base = pathpkg.Clean(base)
	p = pathpkg.Clean(p)

	if p == base {
		return ".", nil
	}

	prefix := base
	if prefix != "/" {
		prefix += "/"
	}

	if !strings.HasPrefix(p, prefix) {
		return "", fmt.Errorf("illegal remote file path: %s is not within %s", p, base)
	}

	return strings.TrimPrefix(p, prefix), nil
}

func downloadDir(ctx context.Context, client *sftp.Client, remoteBase, localBase string, progress tunnel.ProgressFunc) error {
	walker := client.Walk(remoteBase)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return err
		}

		path := walker.Path()

		relPath, err := remoteRel(remoteBase, path)
		if err != nil {
			return err
		}

		localPath := filepath.Join(localBase, filepath.FromSlash(relPath))
		if err := fileutil.CheckPathTraversal(localBase, localPath); err != nil {
			return err
		}

		info := walker.Stat()

		if info.IsDir() {
			if err := os.MkdirAll(localPath, info.Mode().Perm()|0o700); err != nil {
				return err
			}

			continue
		}

		if err := downloadFile(ctx, client, path, localPath, info.Mode(), progress); err != nil {
			return err
		}
	}

	return nil
}

func downloadFile(ctx context.Context, client *sftp.Client, remotePath, localPath string, mode os.FileMode, progress tunnel.ProgressFunc) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	src, err := client.Open(remotePath)
	if err != nil {
		return err
	}

	defer func() { _ = src.Close() }()

	var size int64
	if info, err := src.Stat(); err == nil {
		size = info.Size()
	}

	// Ensure parent exists
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}

	dst, err := os.Create(localPath)
	if err != nil {
		return err
	}

	defer func() { _ = dst.Close() }()

	if err := os.Chmod(localPath, mode); err != nil {
		return fmt.Errorf("failed to chmod local file: %w", err)
	}

	_, err = fileutil.Copy(ctx, dst, src, size, progress)

	return err
}
