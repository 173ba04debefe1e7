package engine

import "sync"

// Ring is a fixed-capacity ring buffer. When full, appends evict the
// oldest item. The engine keeps one for log events so late subscribers
// can backfill a console.
type Ring[T any] struct {
	mu    sync.Mutex
	items []T
	start int
	count int
}

// NewRing returns a ring holding at most capacity items. A
// non-positive capacity falls back to LogRingCapacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = LogRingCapacity
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Append adds an item, evicting the oldest when full.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.items) {
		r.items[(r.start+r.count)%len(r.items)] = item
		r.count++
		return
	}
	r.items[r.start] = item
	r.start = (r.start + 1) % len(r.items)
}

// Items returns a copy of the buffered items, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}

// LastN returns up to n of the most recent items, oldest first.
func (r *Ring[T]) LastN(n int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]T, n)
	first := r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.items[(r.start+first+i)%len(r.items)]
	}
	return out
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Capacity returns the fixed capacity.
func (r *Ring[T]) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Clear drops all buffered items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = 0
	r.count = 0
}
