package tunnel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Executor runs commands on Sessions, one at a time per Session.
type Executor struct {
	cfg Config
	log *zap.SugaredLogger
}

// NewExecutor creates a new Executor.
func NewExecutor(opts ...Option) (*Executor, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return newExecutor(cfg), nil
}

func newExecutor(cfg Config) *Executor {
	return &Executor{
		cfg: cfg,
		log: cfg.Logger.Named("executor").Sugar(),
	}
}

// Execute runs command on s and blocks until it reaches a terminal state.
//
// A plain "cd" is resolved without starting an execution. Anything else runs in
// the session's working directory while onUpdate receives cumulative snapshots.
// A non-zero exit code is part of the output, not an error. The result is
// returned alongside *ExecutionError or *DirectoryChangeError when those occur.
func (e *Executor) Execute(ctx context.Context, s *Session, command string, onUpdate UpdateFunc) (*ExecResult, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, ErrEmptyCommand
	}

	if s.Closed() {
		return nil, ErrSessionClosed
	}

	if s.busy() {
		return nil, ErrBusy
	}

	if onUpdate == nil {
		onUpdate = func(string, string) {}
	}

	start := time.Now()

	outcome, err := s.dir.Rewrite(ctx, s.conn, command)
	if err != nil {
		return nil, &ExecutionError{Command: command, Err: err}
	}

	switch outcome.Kind {
	case OutcomeDirectoryChanged:
		e.log.Infow("directory changed", "identity", s.identity, "old", outcome.Old, "new", outcome.New)

		return &ExecResult{
			Command:  command,
			Outcome:  outcome,
			Status:   StatusCompleted,
			Output:   fmt.Sprintf("directory changed: %s -> %s", outcome.Old, outcome.New),
			Duration: time.Since(start),
		}, nil
	case OutcomeDirectoryChangeFailed:
		e.log.Infow("directory change refused", "identity", s.identity, "path", outcome.Path, "reason", outcome.Reason)

		return &ExecResult{
			Command:  command,
			Outcome:  outcome,
			Status:   StatusFailed,
			Output:   "failed to change directory: " + outcome.Reason,
			ExitCode: -1,
			Duration: time.Since(start),
		}, &DirectoryChangeError{Path: outcome.Path, Reason: outcome.Reason}
	case OutcomePassThrough:
	}

	exec := newExecution(command, outcome.Command)
	if err := s.claim(exec); err != nil {
		return nil, err
	}

	res, err := e.run(ctx, s, exec, onUpdate)
	res.Outcome = outcome

	return res, err
}

// Stop interrupts the active execution of s. It returns false if s is idle.
//
// An interrupt (Ctrl+C) is sent on the loop's next tick. If the execution has not
// finished after the grace period, its channel is closed, it is marked
// StatusInterrupted and the slot is released. Whether the remote process
// actually died is never verified.
func (e *Executor) Stop(s *Session) bool {
	exec := s.Active()
	if exec == nil {
		return false
	}

	exec.requestInterrupt()

	timer := time.NewTimer(e.cfg.InterruptGrace)
	defer timer.Stop()

	select {
	case <-exec.done:
		return true
	case <-timer.C:
	}

	exec.forceAbort()
	exec.advance(StatusInterrupted)
	s.release(exec)

	e.log.Infow("execution force-stopped", "identity", s.identity, "execution", exec.id, "command", exec.command)

	return true
}

// SendInput queues data (without a trailing newline) for the active execution of s.
// A nil error only means the input was queued, not that the process read it.
func (e *Executor) SendInput(s *Session, data string) error {
	if err := s.enqueue(data); err != nil {
		return err
	}

	e.log.Debugw("input queued", "identity", s.identity, "pending", s.input.Len())

	return nil
}

// CurrentDirectory returns the tracked working directory of s.
func (e *Executor) CurrentDirectory(s *Session) string {
	return s.dir.Current()
}
