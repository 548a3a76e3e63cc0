package pipeline

import (
	"context"
	"sync"
)

// DropQueue is a bounded FIFO that never blocks producers: pushing onto a
// full queue evicts the oldest item. Consumers block in Pop until an item
// arrives, the queue is closed, or their context is done.
//
// All methods are safe for concurrent use.
type DropQueue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	dropped  int64
	closed   bool

	// ready holds a token whenever items may be non-empty.
	ready chan struct{}
	done  chan struct{}
}

// NewDropQueue returns an empty queue holding at most capacity items.
// A capacity below 1 is treated as 1.
func NewDropQueue[T any](capacity int) *DropQueue[T] {
	capacity = max(capacity, 1)
	return &DropQueue[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push appends v. When the queue is full the oldest item is removed and
// returned with dropped == true. Pushing onto a closed queue discards v and
// reports nothing.
func (q *DropQueue[T]) Push(v T) (evicted T, dropped bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return evicted, false
	}
	if len(q.items) == q.capacity {
		evicted, dropped = q.items[0], true
		var zero T
		q.items[0] = zero
		q.items = append(q.items[:0], q.items[1:]...)
		q.dropped++
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.signal()
	return evicted, dropped
}

// Pop removes and returns the oldest item, blocking until one is available.
// It returns [ErrClosed] once the queue is closed, even if items remain, and
// ctx.Err() when ctx is done first.
func (q *DropQueue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return v, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close discards queued items and wakes all blocked consumers. Calling Close
// more than once is safe.
func (q *DropQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	clear(q.items)
	q.items = nil
	close(q.done)
}

// Len returns the number of queued items.
func (q *DropQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *DropQueue[T]) Cap() int {
	return q.capacity
}

// Dropped returns how many items were evicted by Push so far.
func (q *DropQueue[T]) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *DropQueue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
