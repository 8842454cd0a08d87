// Package observer contains the dispatch loop: it drains the capture ring,
// drives the decoder, name resolver, registry and scan health monitor, and
// emits deduplicated change events to the presentation layer.
package observer

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/brickscan/internal/capture"
	"github.com/srg/brickscan/internal/health"
	"github.com/srg/brickscan/internal/peer"
	"github.com/srg/brickscan/internal/protocol"
	"github.com/srg/brickscan/internal/radio"
)

// EventType marks what a change event reports.
type EventType int

const (
	// EventBroadcast is a new or changed decoded value.
	EventBroadcast EventType = iota
	// EventNameArrived is a mid-session name resolution for a confirmed
	// hub, surfaced so the moment is visible in the scroll.
	EventNameArrived
)

// Event is one deduplicated change handed to the presentation layer.
type Event struct {
	Type       EventType
	Elapsed    time.Duration
	Addr       string
	Tag        byte
	ColorIndex int
	Name       string
	Channel    uint8
	RSSI       float64 // smoothed
	Value      protocol.Value
}

// Options are the dispatch-loop tunables; all of them are read-only inputs
// owned by the configuration layer.
type Options struct {
	QueueCapacity int
	Dedup         bool
	Alpha         float64 // RSSI smoothing factor in (0,1]
	PaletteSize   int
	PollInterval  time.Duration
	Heartbeat     time.Duration // zero disables the heartbeat log line
}

// Emit receives change events from the dispatch loop. It must not block;
// the presentation layer buffers behind an overwrite-oldest ring.
type Emit func(Event)

// Observer owns every piece of state in the pipeline: the capture ring is
// the only structure shared with the radio goroutine, everything else is
// touched exclusively by the dispatch goroutine.
type Observer struct {
	opts     Options
	buffer   *capture.Buffer
	registry *peer.Registry
	monitor  *health.Monitor
	stats    Stats
	emit     Emit
	logger   *logrus.Logger

	start         time.Time
	lastHeartbeat time.Time
}

// New wires an Observer. The monitor is constructed by the caller so scan
// parameters stay in one place.
func New(opts Options, monitor *health.Monitor, emit Emit, logger *logrus.Logger) *Observer {
	if logger == nil {
		logger = logrus.New()
	}
	if emit == nil {
		emit = func(Event) {}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	return &Observer{
		opts:     opts,
		buffer:   capture.NewBuffer(opts.QueueCapacity),
		registry: peer.NewRegistry(opts.Alpha, opts.PaletteSize, opts.Dedup, logger),
		monitor:  monitor,
		emit:     emit,
		logger:   logger,
	}
}

// HandleFrame is the radio delivery callback. It runs on the delivery
// goroutine and must stay minimal: count, pre-filter, hand off. Regular
// advertisements are queued only when the payload carries the broadcast
// company ID; scan responses are queued unconditionally because they may
// hold the name of a hub whose first packet has not arrived yet.
func (o *Observer) HandleFrame(f radio.Frame) {
	o.stats.Events.Add(1)
	o.monitor.NoteEvent()

	if f.Kind == radio.FrameAdvertisement && !protocol.ContainsCompanyID(f.Data()) {
		return
	}
	if o.buffer.Push(f) {
		o.stats.Queued.Add(1)
	}
}

// HandleScanStopped forwards the platform's asynchronous stopped
// notification to the health monitor.
func (o *Observer) HandleScanStopped() {
	o.monitor.HandleScanStopped()
}

// Run starts the scan and drives the dispatch loop until ctx is done. The
// loop never blocks on packet work: it drains whatever is buffered, runs
// the health checks, and sleeps one poll interval.
func (o *Observer) Run(ctx context.Context) error {
	now := time.Now()
	o.start = now
	o.lastHeartbeat = now

	if err := o.monitor.Start(now); err != nil {
		return err
	}
	defer func() {
		if err := o.monitor.Stop(); err != nil {
			o.logger.WithError(err).Warn("scan stop failed at teardown")
		}
	}()

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for {
		o.drain()
		now = time.Now()
		o.monitor.Check(now)
		o.heartbeat(now)

		select {
		case <-ctx.Done():
			o.drain()
			return nil
		case <-ticker.C:
		}
	}
}

func (o *Observer) drain() {
	for {
		f, ok := o.buffer.Pop()
		if !ok {
			return
		}
		o.process(&f)
	}
}

// process handles one captured frame. The payload is walked exactly once;
// name fragment and vendor element both come out of that walk.
func (o *Observer) process(f *radio.Frame) {
	o.stats.Processed.Add(1)

	fields := protocol.ScanPayload(f.Data())
	bc, err := protocol.ParseBroadcast(fields)

	switch {
	case err == nil:
		o.stats.Matched.Add(1)

		// Resolve the name before observing so a name carried in the same
		// packet as the first broadcast attaches at creation.
		if fields.HasName {
			if p, changed := o.registry.ResolveName(f.Addr, fields.Name); changed {
				o.emitNameArrived(p, f)
			}
		}

		obs := o.registry.Observe(f.Addr, bc.Channel, bc.Value, int(f.RSSI), len(f.Data()))
		if !obs.Changed {
			o.stats.Suppressed.Add(1)
			return
		}
		o.stats.Lines.Add(1)
		o.emit(Event{
			Type:       EventBroadcast,
			Elapsed:    f.Timestamp.Sub(o.start),
			Addr:       obs.Peer.AddrString,
			Tag:        obs.Peer.Tag,
			ColorIndex: obs.Peer.ColorIndex,
			Name:       obs.Peer.Name,
			Channel:    obs.Peer.Channel,
			RSSI:       obs.Peer.RSSI,
			Value:      bc.Value,
		})

	case errors.Is(err, protocol.ErrNotBroadcast):
		switch f.Kind {
		case radio.FrameScanResponse:
			// The boot-time name path: hold the fragment until the hub's
			// first broadcast packet confirms it.
			if fields.HasName {
				if p, changed := o.registry.ResolveName(f.Addr, fields.Name); changed {
					o.emitNameArrived(p, f)
				}
			}
		case radio.FrameAdvertisement:
			// Non-protocol advertisement: this identity is some unrelated
			// device, so a held name for it must not linger. Confirmed
			// peers still pick names out of these frames.
			if _, confirmed := o.registry.Lookup(f.Addr); confirmed {
				if fields.HasName {
					if p, changed := o.registry.ResolveName(f.Addr, fields.Name); changed {
						o.emitNameArrived(p, f)
					}
				}
			} else {
				o.registry.PurgePending(f.Addr)
			}
		}

	case errors.Is(err, protocol.ErrMalformed):
		o.stats.Malformed.Add(1)
		o.logger.WithFields(logrus.Fields{
			"address": f.Addr.String(),
			"error":   err,
		}).Debug("discarding malformed packet")
		// The value is lost, but a name riding in the same scan response is
		// still good; hold it like any other scan-response name.
		if f.Kind == radio.FrameScanResponse && fields.HasName {
			if p, changed := o.registry.ResolveName(f.Addr, fields.Name); changed {
				o.emitNameArrived(p, f)
			}
		}
	}
}

func (o *Observer) emitNameArrived(p *peer.Peer, f *radio.Frame) {
	o.emit(Event{
		Type:       EventNameArrived,
		Elapsed:    f.Timestamp.Sub(o.start),
		Addr:       p.AddrString,
		Tag:        p.Tag,
		ColorIndex: p.ColorIndex,
		Name:       p.Name,
		Channel:    p.Channel,
		RSSI:       p.RSSI,
	})
}

// heartbeat logs a periodic liveness line with the counter snapshot.
func (o *Observer) heartbeat(now time.Time) {
	if o.opts.Heartbeat <= 0 || now.Sub(o.lastHeartbeat) < o.opts.Heartbeat {
		return
	}
	o.lastHeartbeat = now
	o.logger.WithFields(logrus.Fields{
		"elapsed":   now.Sub(o.start).Round(time.Second),
		"events":    o.stats.Events.Load(),
		"queued":    o.stats.Queued.Load(),
		"processed": o.stats.Processed.Load(),
		"drops":     o.buffer.Drops(),
		"lines":     o.stats.Lines.Load(),
		"qlen":      o.buffer.Len(),
	}).Info("heartbeat")
}

// Stats exposes the counters for tests and the heartbeat.
func (o *Observer) Stats() *Stats {
	return &o.stats
}

// Registry exposes the peer registry, primarily for tests.
func (o *Observer) Registry() *peer.Registry {
	return o.registry
}

// QueueDrops returns the capture ring's drop count.
func (o *Observer) QueueDrops() uint64 {
	return o.buffer.Drops()
}

// Summary builds the teardown report.
func (o *Observer) Summary(now time.Time) Summary {
	s := Summary{
		Elapsed:    now.Sub(o.start),
		Events:     o.stats.Events.Load(),
		Matched:    o.stats.Matched.Load(),
		Processed:  o.stats.Processed.Load(),
		Suppressed: o.stats.Suppressed.Load(),
		Lines:      o.stats.Lines.Load(),
		Drops:      o.buffer.Drops(),
	}
	o.registry.Each(func(p *peer.Peer) {
		s.Peers = append(s.Peers, PeerSummary{Tag: p.Tag, Addr: p.AddrString, Name: p.Name})
	})
	return s
}
