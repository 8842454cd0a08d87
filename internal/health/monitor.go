// Package health supervises scan liveness: a silence watchdog, a periodic
// preventive restart, and attribution of asynchronous scan-stopped
// notifications to deliberate restarts.
package health

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/brickscan/internal/radio"
)

// State is the monitor's supervision state.
type State uint32

const (
	// StateRunning means a scan is believed active.
	StateRunning State = iota
	// StateRestarting means a restart has been issued and not yet confirmed.
	StateRestarting
)

func (s State) String() string {
	if s == StateRestarting {
		return "restarting"
	}
	return "running"
}

// Options are the supervision tunables plus the scan parameters to reissue
// on every restart.
type Options struct {
	// Watchdog restarts the scan when no delivery events arrive for this
	// long. Zero disables the watchdog.
	Watchdog time.Duration

	// PreventiveEvents restarts the scan after this many delivery events,
	// bounding slow internal buffer degradation in the radio stack over
	// long sessions. Zero disables preventive restarts.
	PreventiveEvents uint64

	Active   bool
	Interval time.Duration
	Window   time.Duration
}

// Monitor owns the restart decisions. NoteEvent and HandleScanStopped are
// called from the radio delivery goroutine; Start and Check from the
// dispatch goroutine. The baseline/lastCheck pair is dispatch-owned, the
// rest is atomic.
type Monitor struct {
	ctrl   radio.Controller
	opts   Options
	logger *logrus.Logger

	state       atomic.Uint32
	intentional atomic.Bool // set around deliberate stop+start pairs
	events      atomic.Uint64
	unexpected  atomic.Uint64

	mu sync.Mutex // serializes scan-control primitive calls

	baseline  uint64 // events at the last restart or watchdog interval
	lastCheck time.Time
	restarts  uint64
}

// NewMonitor creates a monitor over ctrl. It does not start scanning.
func NewMonitor(ctrl radio.Controller, opts Options, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Monitor{ctrl: ctrl, opts: opts, logger: logger}
}

// Start issues the initial scan and arms the watchdog.
func (m *Monitor) Start(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ctrl.StartScan(m.opts.Active, m.opts.Interval, m.opts.Window); err != nil {
		return err
	}
	m.state.Store(uint32(StateRunning))
	m.baseline = m.events.Load()
	m.lastCheck = now
	return nil
}

// NoteEvent records one radio delivery event. Callable from the delivery
// goroutine.
func (m *Monitor) NoteEvent() {
	m.events.Add(1)
}

// Check runs the watchdog and preventive-restart rules. Called on every
// dispatch loop iteration.
func (m *Monitor) Check(now time.Time) {
	if State(m.state.Load()) == StateRestarting {
		// A previous restart failed; the radio resource may come back, so
		// keep retrying rather than give up.
		m.reissue("retry")
		m.baseline = m.events.Load()
		m.lastCheck = now
		return
	}

	ev := m.events.Load()

	if m.opts.PreventiveEvents > 0 && ev-m.baseline >= m.opts.PreventiveEvents {
		m.logger.WithFields(logrus.Fields{
			"events": ev,
			"reason": "preventive",
		}).Debug("restarting scan")
		m.restart()
		m.baseline = m.events.Load()
		m.lastCheck = now
		return
	}

	if m.opts.Watchdog > 0 && now.Sub(m.lastCheck) >= m.opts.Watchdog {
		if ev == m.baseline {
			m.logger.WithFields(logrus.Fields{
				"silence": m.opts.Watchdog,
				"reason":  "watchdog",
			}).Warn("scan stalled, restarting")
			m.restart()
		}
		m.baseline = m.events.Load()
		m.lastCheck = now
	}
}

// restart performs one deliberate stop+start with the intentional flag set
// across the pair, so the asynchronous stopped notification in between is
// attributable. Restarting while a restart is in flight is coalesced.
func (m *Monitor) restart() {
	if !m.state.CompareAndSwap(uint32(StateRunning), uint32(StateRestarting)) {
		return
	}
	m.restarts++

	m.mu.Lock()
	defer m.mu.Unlock()

	m.intentional.Store(true)
	if err := m.ctrl.StopScan(); err != nil {
		m.logger.WithError(err).Warn("scan stop failed")
	}
	err := m.ctrl.StartScan(m.opts.Active, m.opts.Interval, m.opts.Window)
	m.intentional.Store(false)

	if err != nil {
		// Stay in StateRestarting; Check retries on the next iteration.
		m.logger.WithError(err).Error("scan restart failed")
		return
	}
	m.state.Store(uint32(StateRunning))
}

// reissue retries the start half of a failed restart.
func (m *Monitor) reissue(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.intentional.Store(true)
	err := m.ctrl.StartScan(m.opts.Active, m.opts.Interval, m.opts.Window)
	m.intentional.Store(false)

	if err != nil {
		m.logger.WithError(err).WithField("reason", reason).Error("scan restart failed")
		return
	}
	m.state.Store(uint32(StateRunning))
}

// HandleScanStopped is the asynchronous stopped notification from the
// platform. Expected stops (intentional flag set) are suppressed; an
// unexpected stop is reported and the scan is re-issued immediately.
func (m *Monitor) HandleScanStopped() {
	if m.intentional.Load() {
		m.logger.Debug("scan stopped as requested")
		return
	}
	m.unexpected.Add(1)
	m.logger.Warn("scan stopped unexpectedly, restarting")

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ctrl.StartScan(m.opts.Active, m.opts.Interval, m.opts.Window); err != nil {
		m.logger.WithError(err).Error("scan restart failed")
		m.state.Store(uint32(StateRestarting))
	}
}

// Stop tears the scan down for process teardown, flagging the stop as
// intentional so the trailing notification is not reported.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intentional.Store(true)
	return m.ctrl.StopScan()
}

// State returns the supervision state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Events returns the total delivery events observed.
func (m *Monitor) Events() uint64 {
	return m.events.Load()
}

// Restarts returns the number of deliberate restarts issued.
func (m *Monitor) Restarts() uint64 {
	return m.restarts
}

// UnexpectedStops returns the number of stops that were not attributable to
// a deliberate restart.
func (m *Monitor) UnexpectedStops() uint64 {
	return m.unexpected.Load()
}
