package can

import (
	"errors"
	"sync"
)

var ErrQueueFull = errors.New("can: outbound queue full")

// Queue accepts frames by value for later transmission.
type Queue interface {
	Push(f Frame) error
}

// FIFO is a bounded first-in first-out queue of frames. A full FIFO rejects
// new frames instead of blocking.
type FIFO struct {
	mu    sync.Mutex
	buf   []Frame
	head  int
	count int
}

// NewFIFO creates a FIFO holding at most size frames.
func NewFIFO(size int) *FIFO {
	if size <= 0 {
		size = 64
	}
	return &FIFO{buf: make([]Frame, size)}
}

func (q *FIFO) Push(f Frame) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == len(q.buf) {
		return ErrQueueFull
	}
	q.buf[(q.head+q.count)%len(q.buf)] = f
	q.count++
	return nil
}

// Pop removes the oldest frame.
func (q *FIFO) Pop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return Frame{}, false
	}
	f := q.buf[q.head]
	q.buf[q.head] = Frame{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return f, true
}

// Drain removes and returns every queued frame in order.
func (q *FIFO) Drain() []Frame {
	var out []Frame
	for {
		f, ok := q.Pop()
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

func (q *FIFO) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
