package docker

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/ruffel/tunnel"
	"github.com/ruffel/tunnel/fileutil"
)

// Upload copies a local file or directory to remotePath inside the container.
func (c *Conn) Upload(ctx context.Context, localPath, remotePath string, opts ...tunnel.FileOption) error {
	if err := c.checkOpen(); err != nil {
		return fmt.Errorf("cannot upload files: %w", err)
	}

	cfg := tunnel.NewFileConfig(opts...)

	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}

	// The archive is extracted at the container root with the full relative
	// path as entry names, so the daemon creates any missing parents.
	remotePath = strings.TrimPrefix(path.Clean(strings.ReplaceAll(remotePath, "\\", "/")), "/")

	tarStream := tarArchive(localPath, remotePath, cfg.Permissions)

	defer func() { _ = tarStream.Close() }()

	var total int64
	if !info.IsDir() {
		total = info.Size()
	}

	var reader io.Reader = tarStream
	if cfg.Progress != nil {
		reader = &fileutil.ProgressReader{Reader: tarStream, Total: total, Fn: cfg.Progress}
	}

	options := container.CopyToContainerOptions{
		AllowOverwriteDirWithFile: true,
	}

	if err := c.api.CopyToContainer(ctx, c.container, "/", reader, options); err != nil {
		return &tunnel.TransportError{Op: "copy to container", Err: err}
	}

	return nil
}

// Download copies a remote file or directory to localPath.
func (c *Conn) Download(ctx context.Context, remotePath, localPath string, opts ...tunnel.FileOption) error {
	if err := c.checkOpen(); err != nil {
		return fmt.Errorf("cannot download files: %w", err)
	}

	cfg := tunnel.NewFileConfig(opts...)

	reader, stat, err := c.api.CopyFromContainer(ctx, c.container, remotePath)
	if err != nil {
		return &tunnel.TransportError{Op: "copy from container", Err: err}
	}

	defer func() { _ = reader.Close() }()

	var r io.Reader = reader
	if cfg.Progress != nil {
		r = &fileutil.ProgressReader{Reader: reader, Total: stat.Size, Fn: cfg.Progress}
	}

	return untar(ctx, r, localPath, cfg.Permissions)
}

func (c *Conn) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	return nil
}

// tarArchive streams src as a tar whose root entry is named destName.
func tarArchive(src, destName string, mode os.FileMode) io.ReadCloser {
	r, w := io.Pipe()

	go func() {
		tw := tar.NewWriter(w)

		err := filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			return writeTarEntry(tw, p, info, src, destName, mode)
		})
		if err == nil {
			err = tw.Close()
		}

		_ = w.CloseWithError(err)
	}()

	return r
}

func writeTarEntry(tw *tar.Writer, p string, info os.FileInfo, src, destName string, mode os.FileMode) error {
	rel, err := filepath.Rel(src, p)
	if err != nil {
		return err
	}

	name := destName
	if rel != "." {
		name = path.Join(destName, filepath.ToSlash(rel))
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}

	header.Name = name

	if mode != 0 && !info.IsDir() {
		header.Mode = int64(mode.Perm())
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if info.IsDir() {
		return nil
	}

	f, err := os.Open(p)
	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	_, err = io.Copy(tw, f)

	return err
}

// untar extracts the archive returned by CopyFromContainer. Its root entry is
// written to dst itself.
func untar(ctx context.Context, r io.Reader, dst string, mode os.FileMode) error {
	tr := tar.NewReader(r)

	var root string

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}

		if root == "" {
			root = strings.TrimSuffix(header.Name, "/")
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSuffix(header.Name, "/"), root), "/")
		target := filepath.Join(dst, filepath.FromSlash(rel))

		if err := fileutil.CheckPathTraversal(dst, target); err != nil {
			return fmt.Errorf("illegal file path in tar: %s", header.Name)
		}

		if err := extractEntry(ctx, tr, header, target, mode); err != nil {
			return err
		}
	}
}

func extractEntry(ctx context.Context, tr *tar.Reader, header *tar.Header, target string, mode os.FileMode) error {
	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0o755)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		perm := os.FileMode(header.Mode).Perm()
		if mode != 0 {
			perm = mode
		}

		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
		if err != nil {
			return err
		}

		if _, err := fileutil.Copy(ctx, f, tr, header.Size, nil); err != nil {
			_ = f.Close()

			return err
		}

		return f.Close()
	}

	return nil
}
