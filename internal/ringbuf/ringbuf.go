// Package ringbuf provides a bounded, mutex-guarded FIFO ring buffer.
// When full, Push overwrites the oldest entry, so the buffer always holds
// the most recent Cap() values in insertion order.
package ringbuf

import (
	"sync"
	"sync/atomic"
)

// Ring is a fixed-capacity FIFO that evicts its oldest entry on overflow.
// It is safe for concurrent use; pushes are serialized so insertion order
// is preserved.
type Ring[T any] struct {
	mu   sync.RWMutex
	buf  []T
	pos  int // next write position
	full bool

	// Eviction counter (atomic, for metrics)
	evicted atomic.Uint64
}

// New creates a ring with the given capacity. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. Returns true if an older entry was evicted to make room.
func (r *Ring[T]) Push(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := r.full
	r.buf[r.pos] = v
	r.pos = (r.pos + 1) % len(r.buf)
	if r.pos == 0 && !r.full {
		r.full = true
	}
	if evicted {
		r.evicted.Add(1)
	}
	return evicted
}

// Snapshot returns a copy of the contents, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.len()
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[r.index(i)]
	}
	return out
}

// Last returns the newest entry.
func (r *Ring[T]) Last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	n := r.len()
	if n == 0 {
		return zero, false
	}
	return r.buf[r.index(n-1)], true
}

// Len returns the number of entries currently held.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.len()
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Evicted returns the total number of entries dropped due to overflow.
func (r *Ring[T]) Evicted() uint64 { return r.evicted.Load() }

// Reset drops all entries.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.pos = 0
	r.full = false
}

func (r *Ring[T]) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.pos
}

// index maps a logical position (0 = oldest) to a slot in buf.
func (r *Ring[T]) index(i int) int {
	if !r.full {
		return i
	}
	return (r.pos + i) % len(r.buf)
}
