package player

import "sync"

// Queue is a bounded FIFO shared by one producer and one consumer. Push on a
// full queue fails and leaves the queue untouched; only Flush drops items.
type Queue[T any] struct {
	mu   sync.Mutex
	buf  []T
	head int
	n    int
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{buf: make([]T, capacity)}
}

// Push appends v. It returns false if the queue is full.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
	return true
}

// Front returns the oldest item without removing it.
func (q *Queue[T]) Front() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == 0 {
		var zero T
		return zero, false
	}
	return q.buf[q.head], true
}

// Pop removes and returns the oldest item.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.popLocked()
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v, true
}

// ConsumeFront calls fn with the oldest item while holding the queue lock and
// pops it when fn returns true. It returns false if the queue was empty.
func (q *Queue[T]) ConsumeFront(fn func(T) bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == 0 {
		return false
	}
	if fn(q.buf[q.head]) {
		q.popLocked()
	}
	return true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Full reports whether a Push would fail.
func (q *Queue[T]) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n == len(q.buf)
}

// Flush drops every queued item and returns how many were dropped.
func (q *Queue[T]) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.n
	var zero T
	for i := range q.buf {
		q.buf[i] = zero
	}
	q.head = 0
	q.n = 0
	return dropped
}
