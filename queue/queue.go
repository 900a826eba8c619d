// Package queue implements the bounded event queue between the capture
// engine and the run loop.
//
// A [Queue] is a single-producer, single-consumer ring buffer. The producer
// owns the tail cursor and the consumer owns the head cursor; each side only
// publishes its own cursor, so neither side needs a lock. A full queue drops
// new events and an empty queue reports no event; neither side ever blocks.
package queue

import (
	"fmt"
	"sync/atomic"

	"github.com/keystash-dev/keystash/pkg"
)

// MinCapacity is the smallest accepted queue capacity.
const MinCapacity = 64

// DefaultCapacity is the capacity used when none is configured.
const DefaultCapacity = 256

// Queue is a fixed-capacity SPSC FIFO.
type Queue[T any] struct {
	slots []T

	// head is the count of popped elements, written by the consumer.
	head atomic.Uint64
	// tail is the count of pushed elements, written by the producer.
	tail atomic.Uint64

	dropped atomic.Uint64
}

// New creates a queue holding at most capacity elements.
func New[T any](capacity int) (*Queue[T], error) {
	if capacity < MinCapacity {
		return nil, fmt.Errorf("%w: capacity %d below minimum %d",
			pkg.ErrInvalidParameter, capacity, MinCapacity)
	}
	return &Queue[T]{slots: make([]T, capacity)}, nil
}

// TryPush appends v. It returns false and drops v if the queue is full.
// Only the producer may call TryPush.
func (q *Queue[T]) TryPush(v T) bool {
	tail := q.tail.Load()
	if tail-q.head.Load() == uint64(len(q.slots)) {
		q.dropped.Add(1)
		return false
	}
	q.slots[tail%uint64(len(q.slots))] = v
	q.tail.Store(tail + 1)
	return true
}

// TryPop removes the oldest element. It returns false if the queue is empty.
// Only the consumer may call TryPop.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	head := q.head.Load()
	if head == q.tail.Load() {
		return zero, false
	}
	i := head % uint64(len(q.slots))
	v := q.slots[i]
	q.slots[i] = zero
	q.head.Store(head + 1)
	return v, true
}

// Len returns the number of queued elements. The result is a snapshot and
// may be stale by the time it is used.
func (q *Queue[T]) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.slots)
}

// Dropped returns the number of pushes rejected because the queue was full.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}
