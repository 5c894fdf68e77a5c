package tunnel

import (
	"context"
	"path"
)

// Manager is the identity-keyed surface offered to presentation layers.
// It pairs a Registry with its Executor.
type Manager struct {
	registry *Registry
	executor *Executor
}

// NewManager creates a Manager that connects through dialer.
func NewManager(dialer Dialer, opts ...Option) (*Manager, error) {
	reg, err := NewRegistry(dialer, opts...)
	if err != nil {
		return nil, err
	}

	return &Manager{registry: reg, executor: reg.Executor()}, nil
}

// Registry returns the underlying Registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Connect opens a session for identity, replacing any existing one.
func (m *Manager) Connect(ctx context.Context, identity string, target Target) (SessionInfo, error) {
	s, err := m.registry.Connect(ctx, identity, target)
	if err != nil {
		return SessionInfo{}, err
	}

	return s.Info(), nil
}

// Execute runs command in identity's session.
func (m *Manager) Execute(ctx context.Context, identity, command string, onUpdate UpdateFunc) (*ExecResult, error) {
	s, err := m.registry.Lookup(identity)
	if err != nil {
		return nil, err
	}

	return m.executor.Execute(ctx, s, command, onUpdate)
}

// Stop interrupts the running command of identity and returns its command text.
// It returns ErrNoActiveExecution when nothing is running.
func (m *Manager) Stop(identity string) (string, error) {
	s, err := m.registry.Lookup(identity)
	if err != nil {
		return "", err
	}

	exec := s.Active()
	if exec == nil || !m.executor.Stop(s) {
		return "", ErrNoActiveExecution
	}

	return exec.Command(), nil
}

// SendInput queues data for the running command of identity.
func (m *Manager) SendInput(identity, data string) error {
	s, err := m.registry.Lookup(identity)
	if err != nil {
		return err
	}

	return m.executor.SendInput(s, data)
}

// CurrentDirectory returns the tracked working directory of identity.
func (m *Manager) CurrentDirectory(identity string) (string, error) {
	s, err := m.registry.Lookup(identity)
	if err != nil {
		return "", err
	}

	return m.executor.CurrentDirectory(s), nil
}

// Status describes identity's session.
func (m *Manager) Status(identity string) (SessionInfo, error) {
	s, err := m.registry.Lookup(identity)
	if err != nil {
		return SessionInfo{}, err
	}

	return s.Info(), nil
}

// Preview returns the last n bytes of the running command's output.
func (m *Manager) Preview(identity string, n int) ([]byte, error) {
	s, err := m.registry.Lookup(identity)
	if err != nil {
		return nil, err
	}

	exec := s.Active()
	if exec == nil {
		return nil, ErrNoActiveExecution
	}

	return exec.Tail(n), nil
}

// Upload copies a local file into identity's session. A relative remotePath is
// resolved against the tracked working directory.
func (m *Manager) Upload(ctx context.Context, identity, localPath, remotePath string, opts ...FileOption) error {
	s, ft, err := m.transfer(identity)
	if err != nil {
		return err
	}

	return ft.Upload(ctx, localPath, resolveRemote(s, remotePath), opts...)
}

// Download copies a file out of identity's session. A relative remotePath is
// resolved against the tracked working directory.
func (m *Manager) Download(ctx context.Context, identity, remotePath, localPath string, opts ...FileOption) error {
	s, ft, err := m.transfer(identity)
	if err != nil {
		return err
	}

	return ft.Download(ctx, resolveRemote(s, remotePath), localPath, opts...)
}

func (m *Manager) transfer(identity string) (*Session, FileTransfer, error) {
	s, err := m.registry.Lookup(identity)
	if err != nil {
		return nil, nil, err
	}

	ft, ok := s.conn.(FileTransfer)
	if !ok {
		return nil, nil, ErrNotSupported
	}

	return s, ft, nil
}

// Disconnect tears down identity's session and returns a summary.
func (m *Manager) Disconnect(ctx context.Context, identity string) (string, error) {
	return m.registry.Disconnect(ctx, identity)
}

// Close disconnects every session.
func (m *Manager) Close(ctx context.Context) error {
	return m.registry.Close(ctx)
}

func resolveRemote(s *Session, p string) string {
	if path.IsAbs(p) {
		return p
	}

	dir := s.dir.Current()
	if dir == HomeMarker {
		// SFTP resolves relative paths against the login directory.
		return p
	}

	return path.Join(dir, p)
}
