package tunnel

import (
	"sync"
)

// outputBuffer accumulates an execution's output. It has a single writer (the
// poll loop) and any number of concurrent readers.
type outputBuffer struct {
	mu   sync.RWMutex
	data []byte
}

// Write appends p. It implements io.Writer.
func (b *outputBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	b.data = append(b.data, p...)
	b.mu.Unlock()

	return len(p), nil
}

// WriteString appends s.
func (b *outputBuffer) WriteString(s string) {
	_, _ = b.Write([]byte(s))
}

// String returns a copy of everything written so far.
func (b *outputBuffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return string(b.data)
}

// Len returns the number of buffered bytes.
func (b *outputBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.data)
}

// Tail returns a copy of the last n bytes (everything if n exceeds the length).
func (b *outputBuffer) Tail(n int) []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || len(b.data) == 0 {
		return nil
	}

	if n > len(b.data) {
		n = len(b.data)
	}

	result := make([]byte, n)
	copy(result, b.data[len(b.data)-n:])

	return result
}
