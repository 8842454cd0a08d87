// Package config holds the observer tunables. The core components consume
// these values read-only; nothing in the pipeline mutates configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"

	"github.com/srg/brickscan/internal/present"
)

// Duration wraps time.Duration so YAML accepts "100ms"-style values.
type Duration time.Duration

// UnmarshalYAML parses either a Go duration string or a plain number of
// nanoseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value on line %d", node.Line)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML renders the duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard-library form.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full tunable surface.
type Config struct {
	// SuppressDuplicates filters BLE retransmissions: a line is emitted
	// only when a hub's value actually changes on a channel.
	SuppressDuplicates bool `yaml:"suppress_duplicates" default:"true"`

	// Theme picks the address color palette: "dark" or "light".
	Theme string `yaml:"theme" default:"dark"`

	// ActiveScan sends scan requests, which is required to capture hub
	// names delivered in scan responses.
	ActiveScan bool `yaml:"active_scan" default:"true"`

	// ScanInterval is how often a scan window starts; ScanWindow is how
	// long each window lasts. Window/interval is the radio duty cycle.
	ScanInterval Duration `yaml:"scan_interval"`
	ScanWindow   Duration `yaml:"scan_window"`

	// WatchdogTimeout restarts the scan after this much radio silence.
	WatchdogTimeout Duration `yaml:"watchdog_timeout"`

	// PreventiveRestartEvents proactively restarts the scan every N
	// delivery events, flushing the radio stack's internal buffers before
	// they degrade on long sessions. 0 disables.
	PreventiveRestartEvents uint64 `yaml:"preventive_restart_events" default:"6000"`

	// QueueCapacity bounds the capture handoff ring, sized for worst-case
	// burst; overflow degrades to counted drops.
	QueueCapacity int `yaml:"queue_capacity" default:"180"`

	// EventRingCapacity bounds the presentation-side change-event ring.
	EventRingCapacity uint32 `yaml:"event_ring_capacity" default:"256"`

	// RSSISmoothing is the EMA factor in (0,1]: the weight of each new
	// reading against history.
	RSSISmoothing float64 `yaml:"rssi_smoothing" default:"0.2"`

	// SignalLevels maps smoothed dBm floors to display labels.
	SignalLevels []present.SignalLevel `yaml:"signal_levels"`

	// HeartbeatInterval spaces the periodic status log line. 0 disables.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// PollInterval paces the dispatch loop.
	PollInterval Duration `yaml:"poll_interval"`
}

// DefaultConfig returns the tuned defaults: 50% scan duty cycle, 10s
// watchdog, a preventive restart roughly every 50s of ambient traffic.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.ScanInterval = Duration(100 * time.Millisecond)
	cfg.ScanWindow = Duration(50 * time.Millisecond)
	cfg.WatchdogTimeout = Duration(10 * time.Second)
	cfg.HeartbeatInterval = Duration(30 * time.Second)
	cfg.PollInterval = Duration(20 * time.Millisecond)
	cfg.SignalLevels = append([]present.SignalLevel(nil), present.DefaultSignalLevels...)
	return cfg
}

// Load reads a YAML file over the defaults, so omitted keys keep their
// default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Theme != string(present.ThemeDark) && c.Theme != string(present.ThemeLight) {
		return fmt.Errorf("theme must be %q or %q, got %q", present.ThemeDark, present.ThemeLight, c.Theme)
	}
	if c.RSSISmoothing <= 0 || c.RSSISmoothing > 1 {
		return fmt.Errorf("rssi_smoothing must be in (0,1], got %g", c.RSSISmoothing)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be > 0, got %d", c.QueueCapacity)
	}
	if c.EventRingCapacity == 0 {
		return fmt.Errorf("event_ring_capacity must be > 0")
	}
	if c.ScanInterval <= 0 || c.ScanWindow <= 0 {
		return fmt.Errorf("scan_interval and scan_window must be > 0")
	}
	if c.ScanWindow > c.ScanInterval {
		return fmt.Errorf("scan_window %s exceeds scan_interval %s", c.ScanWindow.Std(), c.ScanInterval.Std())
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0")
	}
	return nil
}
