package local

import (
	"context"

	"github.com/ruffel/tunnel"
)

// RunShell executes a script locally through a throwaway connection.
func RunShell(ctx context.Context, script string, opts ...Option) (*tunnel.BufferedResult, error) {
	conn, err := New(opts...).Dial(ctx, tunnel.Target{})
	if err != nil {
		return nil, err
	}

	defer func() { _ = conn.Close() }()

	return conn.Run(ctx, script)
}
