// ABOUTME: Lock-free single-producer single-consumer bounded queue
// ABOUTME: Hands audio items from transport callbacks to periodic drain tasks
package ring

import "sync/atomic"

// Buffer is a fixed-capacity SPSC queue. Exactly one goroutine may call Push
// and exactly one may call Pop. The head cursor is owned by the producer and
// the tail by the consumer; acquire/release ordering on the cursors makes the
// slot contents visible across the hand-off, so no mutex is needed.
//
// Cursors increase monotonically and are taken modulo the capacity, which
// must be a power of two. When the queue is full the newest item is dropped:
// for live audio a lost recent frame hurts less than added latency.
type Buffer[T any] struct {
	slots []T
	mask  uint32

	head atomic.Uint32 // producer-owned
	tail atomic.Uint32 // consumer-owned

	dropped atomic.Uint64
}

// New creates a buffer with the given capacity, which must be a power of two.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}
	return &Buffer[T]{
		slots: make([]T, capacity),
		mask:  uint32(capacity - 1),
	}
}

// Push copies item into the next free slot. It returns false, leaving the
// buffer untouched, when the queue is full. Never blocks, never allocates.
func (b *Buffer[T]) Push(item T) bool {
	head := b.head.Load()
	tail := b.tail.Load()
	if head-tail > b.mask {
		b.dropped.Add(1)
		return false
	}
	b.slots[head&b.mask] = item
	b.head.Store(head + 1) // release: slot write happens-before cursor advance
	return true
}

// Pop copies the oldest unread item out. The second return is false when the
// queue is empty. Never blocks.
func (b *Buffer[T]) Pop() (T, bool) {
	var zero T
	tail := b.tail.Load()
	head := b.head.Load()
	if tail == head {
		return zero, false
	}
	item := b.slots[tail&b.mask]
	b.tail.Store(tail + 1) // release: slot read happens-before cursor advance
	return item, true
}

// Len reports the number of unread items. Exact only when called from the
// producer or consumer goroutine; advisory otherwise.
func (b *Buffer[T]) Len() int {
	return int(b.head.Load() - b.tail.Load())
}

// Dropped reports how many pushes were rejected because the queue was full.
func (b *Buffer[T]) Dropped() uint64 {
	return b.dropped.Load()
}
