package recorder

import (
	"sync"
)

// Buffer is a thread-safe FIFO between the event callback and a recorder's
// flush loop. It doubles its capacity when it reaches 70% full, up to a hard
// limit; beyond the limit the oldest entries are dropped and counted, so the
// producer never blocks on a slow database.
type Buffer[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	maxCap   int
	closed   bool

	// Stats
	appended int64
	consumed int64
	dropped  int64
	resizes  int
}

// NewBuffer creates a buffer with the given initial and maximum capacity.
func NewBuffer[T any](initial, max int) *Buffer[T] {
	if initial < 1 {
		initial = 1
	}
	if max < initial {
		max = initial
	}
	return &Buffer[T]{
		buf:      make([]T, initial),
		capacity: initial,
		maxCap:   max,
	}
}

// Append adds an item to the buffer, growing it or dropping the oldest entry
// as needed. Returns false if the buffer is closed.
func (b *Buffer[T]) Append(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	// Grow at or above 70% capacity, while growth is still allowed.
	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold && b.capacity < b.maxCap {
		b.grow()
	}

	// Full at maximum capacity: drop the oldest entry. The write below
	// reuses its slot, since tail equals head when the ring is full.
	if b.count == b.capacity {
		b.head = (b.head + 1) % b.capacity
		b.count--
		b.dropped++
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.appended++
	return true
}

// TryNext removes and returns the oldest item without blocking.
// Returns the item and true if available, or zero value and false otherwise.
func (b *Buffer[T]) TryNext() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}

	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero // Clear reference for GC
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.consumed++

	return item, true
}

// Close closes the buffer. After closing, Append returns false; queued items
// remain readable through TryNext.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Len returns the current number of items in the buffer.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity of the buffer.
func (b *Buffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Len:      b.count,
		Cap:      b.capacity,
		Appended: b.appended,
		Consumed: b.consumed,
		Dropped:  b.dropped,
		Resizes:  b.resizes,
	}
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Len      int
	Cap      int
	Appended int64
	Consumed int64
	Dropped  int64
	Resizes  int
}

// grow doubles the buffer capacity, capped at the maximum. Must be called
// with the lock held.
func (b *Buffer[T]) grow() {
	newCapacity := b.capacity * 2
	if newCapacity > b.maxCap {
		newCapacity = b.maxCap
	}
	if newCapacity == b.capacity {
		return
	}
	newBuf := make([]T, newCapacity)

	// Copy existing items to new buffer
	if b.count > 0 {
		if b.head < b.tail {
			// Contiguous: [head...tail)
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			// Wrapped: [head...end) + [0...tail)
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity = newCapacity
	b.resizes++
}
