package present

import (
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"

	"github.com/srg/brickscan/internal/observer"
)

// EventRing buffers change events between the dispatch loop and the
// terminal. Overwrite-oldest is the right policy on this side of the
// pipeline: the dispatch loop must never wait on a slow terminal, and a
// stale change line is worth less than a fresh one.
type EventRing struct {
	buf         mpmc.RichOverlappedRingBuffer[observer.Event]
	overwritten atomic.Uint64
}

// NewEventRing creates a ring with at least the given capacity.
func NewEventRing(capacity uint32) *EventRing {
	if capacity == 0 {
		capacity = 256
	}
	return &EventRing{buf: mpmc.NewOverlappedRingBuffer[observer.Event](capacity)}
}

// Publish enqueues an event, overwriting the oldest buffered one when full.
// Never blocks; safe from the dispatch goroutine.
func (r *EventRing) Publish(ev observer.Event) {
	overwrites, err := r.buf.EnqueueM(ev)
	if err != nil {
		// Overlapped enqueue does not fail under normal operation.
		return
	}
	r.overwritten.Add(uint64(overwrites))
}

// Drain hands every currently buffered event to fn, in order.
func (r *EventRing) Drain(fn func(observer.Event)) {
	for !r.buf.IsEmpty() {
		ev, err := r.buf.Dequeue()
		if err != nil {
			return
		}
		fn(ev)
	}
}

// Overwritten returns the number of events lost to overwriting.
func (r *EventRing) Overwritten() uint64 {
	return r.overwritten.Load()
}
