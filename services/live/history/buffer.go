// Package history provides the bounded in-memory buffers behind the live
// views (worker alerts and trend, admin alerts and live graph).
package history

import "sync"

// Capacities configures the per-view buffer sizes.
type Capacities struct {
	WorkerAlerts   int
	WorkerTrend    int
	AdminLiveGraph int
	AdminAlerts    int
}

// DefaultCapacities returns the stock view sizes.
func DefaultCapacities() Capacities {
	return Capacities{
		WorkerAlerts:   10,
		WorkerTrend:    30,
		AdminLiveGraph: 100,
		AdminAlerts:    100,
	}
}

// Buffer is a FIFO ring that evicts the oldest item once capacity is
// reached. A capacity <= 0 means unbounded.
type Buffer[T any] struct {
	mu       sync.Mutex
	capacity int
	items    []T
	start    int
	size     int
}

// New creates a buffer holding at most capacity items.
func New[T any](capacity int) *Buffer[T] {
	b := &Buffer[T]{capacity: capacity}
	if capacity > 0 {
		b.items = make([]T, capacity)
	}
	return b
}

// Append adds item as the newest element.
func (b *Buffer[T]) Append(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.capacity <= 0 {
		b.items = append(b.items, item)
		b.size++
		return
	}

	if b.size < b.capacity {
		b.items[(b.start+b.size)%b.capacity] = item
		b.size++
		return
	}

	// full: overwrite the oldest slot and advance the head
	b.items[b.start] = item
	b.start = (b.start + 1) % b.capacity
}

// Snapshot returns a copy ordered oldest to newest.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.at(i)
	}
	return out
}

// Newest returns a copy ordered newest to oldest.
func (b *Buffer[T]) Newest() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.at(b.size - 1 - i)
	}
	return out
}

// Len returns the number of stored items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the configured capacity.
func (b *Buffer[T]) Cap() int {
	return b.capacity
}

// Reset drops all items.
func (b *Buffer[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	if b.capacity <= 0 {
		b.items = nil
	}
	b.start = 0
	b.size = 0
}

func (b *Buffer[T]) at(i int) T {
	if b.capacity <= 0 {
		return b.items[i]
	}
	return b.items[(b.start+i)%b.capacity]
}
