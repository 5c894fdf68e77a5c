package tunnel

// InputQueue is a bounded FIFO of operator input lines awaiting delivery to a
// running command. Neither end ever blocks.
type InputQueue struct {
	items chan string
}

// NewInputQueue creates a queue holding at most size items.
// The size must be greater than 0; if not, it defaults to 1.
func NewInputQueue(size int) *InputQueue {
	if size <= 0 {
		size = 1
	}

	return &InputQueue{items: make(chan string, size)}
}

// TryPush appends data, returning ErrInputQueueFull when at capacity.
func (q *InputQueue) TryPush(data string) error {
	select {
	case q.items <- data:
		return nil
	default:
		return ErrInputQueueFull
	}
}

// TryPop removes the oldest item. It returns immediately with ok=false when empty.
func (q *InputQueue) TryPop() (string, bool) {
	select {
	case data := <-q.items:
		return data, true
	default:
		return "", false
	}
}

// Drain discards every pending item and returns how many were dropped.
func (q *InputQueue) Drain() int {
	n := 0

	for {
		if _, ok := q.TryPop(); !ok {
			return n
		}

		n++
	}
}

// Len returns the number of pending items.
func (q *InputQueue) Len() int {
	return len(q.items)
}

// Cap returns the capacity of the queue.
func (q *InputQueue) Cap() int {
	return cap(q.items)
}
