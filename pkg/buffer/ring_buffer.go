package buffer

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrIteratorDone is returned by Next when the ring is closed and drained.
var ErrIteratorDone = errors.New("iterator done")

// RingBuffer is a fixed-capacity FIFO of elements that never blocks the
// producer: when full, Add evicts the oldest element to make room. It is
// meant for single-producer, single-consumer hand-offs where stale data is
// worse than a gap, such as audio frames waiting to be rendered.
//
// Consumers either poll with Pop, which never blocks, or wait with Next.
type RingBuffer[T any] struct {
	notify chan struct{}

	mu         sync.Mutex
	buf        []T
	head, tail int64
	dropped    int64
	closed     bool
}

// RingN creates a RingBuffer holding at most size elements.
func RingN[T any](size int) *RingBuffer[T] {
	if size <= 0 {
		panic(fmt.Sprintf("buffer: invalid ring size %d", size))
	}
	return &RingBuffer[T]{
		notify: make(chan struct{}, 1),
		buf:    make([]T, size),
	}
}

// Add appends t. If the ring is full the oldest element is discarded and
// evicted is true.
func (rb *RingBuffer[T]) Add(t T) (evicted bool, err error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closed {
		return false, fmt.Errorf("buffer: write to closed ring: %w", io.ErrClosedPipe)
	}
	size := int64(len(rb.buf))
	rb.buf[rb.tail%size] = t
	rb.tail++
	if rb.tail-rb.head > size {
		var zero T
		rb.buf[rb.head%size] = zero
		rb.head++
		rb.dropped++
		evicted = true
	}
	select {
	case rb.notify <- struct{}{}:
	default:
	}
	return evicted, nil
}

// Pop removes and returns the oldest element without blocking.
func (rb *RingBuffer[T]) Pop() (t T, ok bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.popLocked()
}

func (rb *RingBuffer[T]) popLocked() (t T, ok bool) {
	if rb.head == rb.tail {
		return t, false
	}
	idx := rb.head % int64(len(rb.buf))
	t = rb.buf[idx]
	var zero T
	rb.buf[idx] = zero
	rb.head++
	return t, true
}

// Next removes and returns the oldest element, waiting until one is
// available. It returns ErrIteratorDone once the ring is closed and empty.
func (rb *RingBuffer[T]) Next() (T, error) {
	for {
		rb.mu.Lock()
		if t, ok := rb.popLocked(); ok {
			rb.mu.Unlock()
			return t, nil
		}
		if rb.closed {
			rb.mu.Unlock()
			var zero T
			return zero, ErrIteratorDone
		}
		rb.mu.Unlock()
		<-rb.notify
	}
}

// Close stops further writes. Buffered elements can still be drained.
func (rb *RingBuffer[T]) Close() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closed {
		return nil
	}
	rb.closed = true
	close(rb.notify)
	return nil
}

// Reset discards all buffered elements.
func (rb *RingBuffer[T]) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	clear(rb.buf)
	rb.head = 0
	rb.tail = 0
}

// Len returns the number of buffered elements.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return int(rb.tail - rb.head)
}

// Cap returns the capacity.
func (rb *RingBuffer[T]) Cap() int {
	return len(rb.buf)
}

// Dropped returns how many elements Add has evicted so far.
func (rb *RingBuffer[T]) Dropped() int64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.dropped
}

// Items returns a copy of the buffered elements, oldest first.
func (rb *RingBuffer[T]) Items() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	n := rb.tail - rb.head
	out := make([]T, 0, n)
	for i := rb.head; i < rb.tail; i++ {
		out = append(out, rb.buf[i%int64(len(rb.buf))])
	}
	return out
}
