package tunnel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Execution is one in-flight command bound to a Session.
//
// Only the poll loop writes the buffer and moves the status forward; Stop and
// SendInput communicate with it through channels. The terminal status is set
// exactly once, by whichever of the loop or a forced Stop gets there first.
type Execution struct {
	id        string
	command   string
	qualified string
	startedAt time.Time

	buf    outputBuffer
	status atomic.Int32

	mu      sync.Mutex
	channel Channel // nil until opened

	interrupt   chan struct{} // capacity 1; an interrupt request for the loop
	interrupted atomic.Bool   // set once an interrupt has been requested
	abort       chan struct{} // closed by a forced stop
	abortOnce   sync.Once
	done        chan struct{} // closed when the loop has returned
}

func newExecution(command, qualified string) *Execution {
	return &Execution{
		id:        uuid.NewString(),
		command:   command,
		qualified: qualified,
		startedAt: time.Now(),
		interrupt: make(chan struct{}, 1),
		abort:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// ID returns the unique execution identifier.
func (e *Execution) ID() string {
	return e.id
}

// Command returns the command as submitted by the operator.
func (e *Execution) Command() string {
	return e.command
}

// QualifiedCommand returns the directory-qualified command sent to the remote side.
func (e *Execution) QualifiedCommand() string {
	return e.qualified
}

// StartedAt returns when the execution was created.
func (e *Execution) StartedAt() time.Time {
	return e.startedAt
}

// Status returns the current lifecycle state.
func (e *Execution) Status() Status {
	return Status(e.status.Load())
}

// Output returns the full buffer accumulated so far.
func (e *Execution) Output() string {
	return e.buf.String()
}

// Tail returns the last n bytes of the buffer, for bounded previews.
func (e *Execution) Tail(n int) []byte {
	return e.buf.Tail(n)
}

// Done is closed once the poll loop has returned.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Info returns a point-in-time description.
func (e *Execution) Info() *ExecutionInfo {
	return &ExecutionInfo{
		ID:        e.id,
		Command:   e.command,
		Status:    e.Status(),
		StartedAt: e.startedAt,
		Running:   time.Since(e.startedAt),
	}
}

// advance moves a non-terminal execution to s. It never leaves a terminal state.
func (e *Execution) advance(s Status) bool {
	for {
		cur := Status(e.status.Load())
		if cur.Terminal() {
			return false
		}

		if e.status.CompareAndSwap(int32(cur), int32(s)) {
			return true
		}
	}
}

func (e *Execution) attach(ch Channel) {
	e.mu.Lock()
	e.channel = ch
	e.mu.Unlock()
}

func (e *Execution) closeChannel() error {
	e.mu.Lock()
	ch := e.channel
	e.mu.Unlock()

	if ch == nil {
		return nil
	}

	return ch.Close()
}

// requestInterrupt asks the loop to send an interrupt on its next tick.
func (e *Execution) requestInterrupt() {
	e.interrupted.Store(true)

	select {
	case e.interrupt <- struct{}{}:
	default:
	}
}

// forceAbort marks the execution aborted and closes its channel.
func (e *Execution) forceAbort() {
	e.abortOnce.Do(func() {
		e.interrupted.Store(true)
		close(e.abort)
		_ = e.closeChannel()
	})
}

func (e *Execution) aborted() bool {
	select {
	case <-e.abort:
		return true
	default:
		return false
	}
}
