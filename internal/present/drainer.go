package present

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/brickscan/internal/groutine"
	"github.com/srg/brickscan/internal/observer"
)

// Sink receives drained change events, in order.
type Sink func(observer.Event)

// Drainer continuously drains an EventRing to one or more sinks on a
// background goroutine, so the terminal (and any script hook) runs at its
// own pace. Cancel stops the goroutine after a final flush; Wait blocks
// until it has exited.
type Drainer struct {
	cancelOnce sync.Once
	stop       chan struct{}
	wg         sync.WaitGroup
}

// drainPoll is how often the drainer looks for new events. The ring has no
// blocking receive, so the drainer polls; 5ms keeps output latency invisible
// at terminal speeds.
const drainPoll = 5 * time.Millisecond

// NewDrainer starts the drain goroutine.
func NewDrainer(ctx context.Context, ring *EventRing, logger *logrus.Logger, sinks ...Sink) *Drainer {
	if logger == nil {
		logger = logrus.New()
	}

	d := &Drainer{stop: make(chan struct{})}
	deliver := func(ev observer.Event) {
		for _, sink := range sinks {
			sink(ev)
		}
	}

	d.wg.Add(1)
	groutine.Go(ctx, "event-drainer", func(ctx context.Context) {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("panic", r).Error("event drainer: panic recovered")
			}
		}()
		defer logger.Debugf("%s: exiting", groutine.Name(ctx))

		ticker := time.NewTicker(drainPoll)
		defer ticker.Stop()

		for {
			ring.Drain(deliver)
			select {
			case <-d.stop:
				ring.Drain(deliver) // final flush
				return
			case <-ctx.Done():
				ring.Drain(deliver)
				return
			case <-ticker.C:
			}
		}
	})

	return d
}

// Cancel signals the drainer to flush and stop. Safe to call repeatedly.
func (d *Drainer) Cancel() {
	d.cancelOnce.Do(func() {
		close(d.stop)
	})
}

// Wait blocks until the drain goroutine has exited.
func (d *Drainer) Wait() {
	d.wg.Wait()
}
