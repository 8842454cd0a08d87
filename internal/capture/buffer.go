// Package capture provides the fixed-capacity handoff ring between the radio
// delivery goroutine and the dispatch loop.
package capture

import (
	"sync/atomic"

	"github.com/srg/brickscan/internal/radio"
)

// Buffer is a bounded single-producer/single-consumer ring of captured frames.
//
// Push runs on the radio delivery goroutine, Pop on the dispatch goroutine;
// both are O(1), never block, and are safe to interleave arbitrarily. The
// head and tail cursors are the only shared state: the producer publishes a
// slot by advancing tail after the write, the consumer releases it by
// advancing head after the read. Capacity is fixed at construction and the
// slot array is never resized.
//
// On overflow Push refuses the incoming frame (drop-newest) and increments
// the drop counter: refusing keeps the producer path constant-time and
// preserves the ordering of frames already buffered.
type Buffer struct {
	slots []radio.Frame
	head  atomic.Uint64 // next slot to pop, advanced only by the consumer
	tail  atomic.Uint64 // next slot to push, advanced only by the producer
	drops atomic.Uint64
}

// NewBuffer creates a Buffer with the given fixed capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		panic("capture: capacity must be > 0")
	}
	return &Buffer{slots: make([]radio.Frame, capacity)}
}

// Push enqueues f, or drops it when the ring is full. It reports whether the
// frame was accepted. Safe to call while a Pop is mid-flight.
func (b *Buffer) Push(f radio.Frame) bool {
	tail := b.tail.Load()
	if tail-b.head.Load() == uint64(len(b.slots)) {
		b.drops.Add(1)
		return false
	}
	b.slots[tail%uint64(len(b.slots))] = f
	b.tail.Store(tail + 1)
	return true
}

// Pop dequeues the oldest buffered frame. The second result is false when
// the ring is empty; Pop never waits.
func (b *Buffer) Pop() (radio.Frame, bool) {
	head := b.head.Load()
	if head == b.tail.Load() {
		return radio.Frame{}, false
	}
	f := b.slots[head%uint64(len(b.slots))]
	b.head.Store(head + 1)
	return f, true
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	return int(b.tail.Load() - b.head.Load())
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.slots)
}

// Drops returns the number of frames refused due to overflow.
func (b *Buffer) Drops() uint64 {
	return b.drops.Load()
}
