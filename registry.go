package tunnel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry owns the live Sessions, keyed by operator identity.
type Registry struct {
	dialer   Dialer
	executor *Executor
	cfg      Config
	log      *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a Registry that connects through dialer.
func NewRegistry(dialer Dialer, opts ...Option) (*Registry, error) {
	if dialer == nil {
		return nil, errors.New("dialer cannot be nil")
	}

	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return &Registry{
		dialer:   dialer,
		executor: newExecutor(cfg),
		cfg:      cfg,
		log:      cfg.Logger.Named("registry").Sugar(),
		sessions: make(map[string]*Session),
	}, nil
}

// Executor returns the Executor used to stop executions on disconnect.
func (r *Registry) Executor() *Executor {
	return r.executor
}

// Connect dials target, resolves the initial working directory and registers
// the new Session under identity. An existing session for identity is
// disconnected first.
func (r *Registry) Connect(ctx context.Context, identity string, target Target) (*Session, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	if _, err := r.Disconnect(ctx, identity); err != nil && !errors.Is(err, ErrNotConnected) {
		return nil, err
	}

	conn, err := r.dial(ctx, target)
	if err != nil {
		r.log.Warnw("connect failed", "identity", identity, "target", target.String(), "error", err)

		return nil, err
	}

	res, err := conn.Run(ctx, "pwd")
	if err != nil {
		_ = conn.Close()

		return nil, &TransportError{Op: "resolve working directory", Err: err}
	}

	dir := HomeMarker
	if res.Success() {
		if line := lastLine(string(res.Stdout)); line != "" {
			dir = line
		}
	}

	s := newSession(identity, target, conn, dir, r.cfg.InputQueueSize)

	r.mu.Lock()
	previous := r.sessions[identity]
	r.sessions[identity] = s
	r.mu.Unlock()

	// A concurrent Connect for the same identity may have won the race.
	if previous != nil {
		r.teardown(previous)
	}

	r.log.Infow("connected", "identity", identity, "target", target.String(), "directory", dir)

	return s, nil
}

// dial connects, retrying transport failures with linear backoff.
func (r *Registry) dial(ctx context.Context, target Target) (Conn, error) {
	var lastErr error

	for i := range r.cfg.DialAttempts {
		if i > 0 {
			if err := wait(ctx, r.cfg.DialDelay); err != nil {
				return nil, err
			}
		}

		conn, err := r.dialer.Dial(ctx, target)
		if err == nil {
			return conn, nil
		}

		lastErr = err

		var authErr *AuthenticationError
		if errors.As(err, &authErr) {
			return nil, err
		}
	}

	return nil, lastErr
}

// Disconnect stops any active execution, closes the connection and forgets the
// session. The session is removed even if closing the connection fails.
// It returns a human-readable summary of what was torn down.
func (r *Registry) Disconnect(_ context.Context, identity string) (string, error) {
	r.mu.Lock()
	s, ok := r.sessions[identity]
	if ok {
		delete(r.sessions, identity)
	}
	r.mu.Unlock()

	if !ok {
		return "", ErrNotConnected
	}

	return r.teardown(s), nil
}

func (r *Registry) teardown(s *Session) string {
	var parts []string

	parts = append(parts, "disconnected from "+s.Target().String())

	if exec := s.Active(); exec != nil && r.executor.Stop(s) {
		parts = append(parts, fmt.Sprintf("stopped %q", exec.Command()))
	}

	if err := s.close(); err != nil {
		r.log.Warnw("error closing connection", "identity", s.identity, "error", err)
		parts = append(parts, fmt.Sprintf("close error: %v", err))
	}

	r.log.Infow("disconnected", "identity", s.identity, "uptime", time.Since(s.connectedAt))

	return strings.Join(parts, "; ")
}

// Lookup returns the session registered under identity.
func (r *Registry) Lookup(identity string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[identity]
	if !ok {
		return nil, ErrNotConnected
	}

	return s, nil
}

// Sessions returns the live sessions ordered by identity.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.sessions))

	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].identity < out[j].identity })

	return out
}

// Close disconnects every session.
func (r *Registry) Close(ctx context.Context) error {
	for _, s := range r.Sessions() {
		_, _ = r.Disconnect(ctx, s.identity)
	}

	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
