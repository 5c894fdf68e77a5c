package tunnel

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// interruptByte is what a terminal sends for Ctrl+C.
const interruptByte = 0x03

// stderrTag marks chunks that arrived on the error stream.
const stderrTag = "[stderr] "

// poller drives one Execution from Starting to a terminal state.
// It is the only writer of the execution's buffer.
type poller struct {
	cfg      Config
	log      *zap.SugaredLogger
	session  *Session
	exec     *Execution
	channel  Channel
	onUpdate UpdateFunc

	lastSnapshot time.Time
	snapshotLen  int
}

// run opens the channel and polls it. The slot is always released and the
// channel always closed on return, whichever step failed.
func (e *Executor) run(ctx context.Context, s *Session, exec *Execution, onUpdate UpdateFunc) (*ExecResult, error) {
	log := e.log.With("identity", s.identity, "execution", exec.id)

	defer func() {
		_ = exec.closeChannel()
		s.release(exec)
		close(exec.done)
	}()

	log.Infow("starting execution", "command", exec.command)

	pty := e.cfg.Pty

	ch, err := s.conn.Open(ctx, exec.qualified, &pty)
	if err != nil {
		exec.advance(StatusFailed)
		log.Warnw("failed to open channel", "error", err)

		return resultOf(exec, -1), &ExecutionError{Command: exec.command, Err: err}
	}

	exec.attach(ch)

	if exec.aborted() {
		exec.advance(StatusInterrupted)

		return resultOf(exec, -1), nil
	}

	exec.advance(StatusRunning)

	p := &poller{
		cfg:          e.cfg,
		log:          log,
		session:      s,
		exec:         exec,
		channel:      ch,
		onUpdate:     onUpdate,
		lastSnapshot: time.Now(),
	}

	res, err := p.loop(ctx)

	log.Infow("execution finished", "status", res.Status, "exit_code", res.ExitCode, "duration", res.Duration, "error", err)

	return res, err
}

func (p *poller) loop(ctx context.Context) (*ExecResult, error) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if p.exec.aborted() {
			return p.interrupted(), nil
		}

		if ctx.Err() != nil {
			p.sendInterrupt()
			p.exec.forceAbort()

			return p.interrupted(), ctx.Err()
		}

		select {
		case <-p.exec.interrupt:
			p.sendInterrupt()
		default:
		}

		if err := p.forwardInput(); err != nil {
			return p.fail(err)
		}

		if err := p.drain(); err != nil {
			return p.fail(err)
		}

		if p.exec.buf.Len() > p.snapshotLen && time.Since(p.lastSnapshot) >= p.cfg.SnapshotInterval {
			p.snapshot()
		}

		if p.channel.Exited() {
			return p.complete()
		}

		select {
		case <-ticker.C:
		case <-p.exec.abort:
		case <-ctx.Done():
		}
	}
}

// forwardInput delivers at most one pending input line.
// Input stays queued while the channel does not accept writes.
func (p *poller) forwardInput() error {
	if !p.channel.WriteReady() {
		return nil
	}

	data, ok := p.session.input.TryPop()
	if !ok {
		return nil
	}

	if _, err := p.channel.Write([]byte(data + "\n")); err != nil {
		return fmt.Errorf("writing input: %w", err)
	}

	p.log.Debugw("input forwarded", "bytes", len(data)+1)
	p.exec.buf.WriteString(fmt.Sprintf("[input sent: %s]\n", data))
	p.snapshot()

	return nil
}

// drain moves everything currently available on both streams into the buffer.
func (p *poller) drain() error {
	out, err := p.channel.ReadStdout()
	if len(out) > 0 {
		_, _ = p.exec.buf.Write(out)
	}

	if err != nil {
		return fmt.Errorf("reading stdout: %w", err)
	}

	errOut, err := p.channel.ReadStderr()
	if len(errOut) > 0 {
		p.exec.buf.WriteString(stderrTag + string(errOut))
	}

	if err != nil {
		return fmt.Errorf("reading stderr: %w", err)
	}

	return nil
}

func (p *poller) snapshot() {
	output := p.exec.buf.String()
	p.lastSnapshot = time.Now()
	p.snapshotLen = len(output)
	p.onUpdate(p.exec.command, output)
}

func (p *poller) sendInterrupt() {
	if _, err := p.channel.Write([]byte{interruptByte}); err != nil {
		p.log.Debugw("interrupt not delivered", "error", err)

		return
	}

	p.log.Debugw("interrupt sent")
}

func (p *poller) complete() (*ExecResult, error) {
	if err := p.drain(); err != nil {
		return p.fail(err)
	}

	p.exec.advance(StatusDraining)

	code, err := p.channel.ExitCode()
	if err != nil {
		return p.fail(fmt.Errorf("reading exit status: %w", err))
	}

	if code != 0 {
		p.exec.buf.WriteString(fmt.Sprintf("\n\nexit status: %d", code))
	}

	final := StatusCompleted
	if p.exec.interrupted.Load() {
		final = StatusInterrupted
	}

	p.exec.advance(final)

	return resultOf(p.exec, code), nil
}

func (p *poller) interrupted() *ExecResult {
	p.exec.advance(StatusInterrupted)

	return resultOf(p.exec, -1)
}

// fail converts a transport fault into StatusFailed, unless the fault was
// caused by a forced stop closing the channel.
func (p *poller) fail(err error) (*ExecResult, error) {
	if p.exec.aborted() {
		return p.interrupted(), nil
	}

	p.exec.advance(StatusFailed)
	p.log.Warnw("execution failed", "error", err)

	return resultOf(p.exec, -1), &ExecutionError{Command: p.exec.command, Err: err}
}

func resultOf(exec *Execution, exitCode int) *ExecResult {
	return &ExecResult{
		ID:       exec.id,
		Command:  exec.command,
		Status:   exec.Status(),
		Output:   exec.buf.String(),
		ExitCode: exitCode,
		Duration: time.Since(exec.startedAt),
	}
}
