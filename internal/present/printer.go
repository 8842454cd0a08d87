// Package present is the terminal presentation layer: color themes, signal
// labels, line and summary formatting, and the ring-plus-drainer plumbing
// that keeps slow terminal writes off the dispatch loop.
package present

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/srg/brickscan/internal/observer"
)

// Format selects the line output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Theme selects the palette for hub address coloring.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Palettes are ordered so early tags get the most distinguishable colors on
// the respective background.
var (
	darkPalette = []color.Attribute{
		color.FgHiRed, color.FgHiGreen, color.FgHiYellow, color.FgHiBlue,
		color.FgHiMagenta, color.FgHiCyan, color.FgRed, color.FgGreen,
		color.FgYellow, color.FgMagenta,
	}
	lightPalette = []color.Attribute{
		color.FgRed, color.FgGreen, color.FgBlue, color.FgMagenta,
		color.FgCyan, color.FgYellow, color.FgHiRed, color.FgHiGreen,
		color.FgHiBlue, color.FgHiMagenta,
	}
)

// Palette returns the attribute list for a theme.
func Palette(t Theme) []color.Attribute {
	if t == ThemeLight {
		return lightPalette
	}
	return darkPalette
}

// SignalLevel maps a dBm floor to a human-readable label.
type SignalLevel struct {
	Floor int    `yaml:"floor"`
	Label string `yaml:"label"`
}

// DefaultSignalLevels is tuned for indoor room-scale BLE.
var DefaultSignalLevels = []SignalLevel{
	{Floor: -55, Label: "Very close"},
	{Floor: -70, Label: "Nearby"},
	{Floor: -80, Label: "Far"},
}

// SignalWeak labels readings below every configured floor.
const SignalWeak = "Weak"

// SignalLabel converts a smoothed dBm reading to its label.
func SignalLabel(levels []SignalLevel, dbm float64) string {
	for _, l := range levels {
		if dbm >= float64(l.Floor) {
			return l.Label
		}
	}
	return SignalWeak
}

// Printer renders change events and the teardown summary. Colors are
// enabled only when the writer is a terminal.
type Printer struct {
	out     io.Writer
	palette []*color.Color
	levels  []SignalLevel
	format  Format
	logger  *logrus.Logger
}

// NewPrinter builds a printer for out. A nil levels slice falls back to
// DefaultSignalLevels.
func NewPrinter(out io.Writer, theme Theme, levels []SignalLevel, format Format, logger *logrus.Logger) *Printer {
	if logger == nil {
		logger = logrus.New()
	}
	if levels == nil {
		levels = DefaultSignalLevels
	}

	colorize := false
	if f, ok := out.(*os.File); ok {
		colorize = term.IsTerminal(int(f.Fd()))
	}

	attrs := Palette(theme)
	palette := make([]*color.Color, len(attrs))
	for i, attr := range attrs {
		c := color.New(attr)
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		palette[i] = c
	}

	return &Printer{out: out, palette: palette, levels: levels, format: format, logger: logger}
}

// PaletteSize returns the number of distinct hub colors, which bounds the
// registry's color index.
func (p *Printer) PaletteSize() int {
	return len(p.palette)
}

// Banner prints the startup line. Suppressed in JSON mode.
func (p *Printer) Banner(version string, dedup, active bool) {
	if p.format == FormatJSON {
		return
	}
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	fmt.Fprintf(p.out, "brickscan %s  observing broadcast advertisements (Ctrl-C to stop)  [dedup=%s active=%s]\n",
		version, onOff(dedup), onOff(active))
}

// Header prints the column header. Suppressed in JSON mode.
func (p *Printer) Header() {
	if p.format == FormatJSON {
		return
	}
	fmt.Fprintf(p.out, "%8s  %-17s [T] %-12s  ch %-18s %s\n", "secs", "Address", "Hub name", "Signal", "Value")
	fmt.Fprintln(p.out, strings.Repeat("-", 70))
}

type jsonEvent struct {
	Type    string  `json:"type"`
	Elapsed float64 `json:"elapsed_sec"`
	Address string  `json:"address"`
	Tag     string  `json:"tag"`
	Name    string  `json:"name,omitempty"`
	Channel uint8   `json:"channel"`
	Signal  string  `json:"signal"`
	RSSI    float64 `json:"rssi"`
	Value   string  `json:"value,omitempty"`
}

// Line renders one change event.
func (p *Printer) Line(ev observer.Event) {
	if p.format == FormatJSON {
		p.jsonLine(ev)
		return
	}

	secs := int64(ev.Elapsed / time.Second)
	addr := p.colorFor(ev.ColorIndex).Sprint(ev.Addr)

	if ev.Type == observer.EventNameArrived {
		fmt.Fprintf(p.out, "%8ds %s [%c] name resolved: %s\n", secs, addr, ev.Tag, ev.Name)
		return
	}

	signal := fmt.Sprintf("%-10s %4.0fdBm", SignalLabel(p.levels, ev.RSSI), ev.RSSI)
	fmt.Fprintf(p.out, "%8ds %s [%c] %-12s %3d %s %s\n",
		secs, addr, ev.Tag, ev.Name, ev.Channel, signal, ev.Value.String())
}

func (p *Printer) jsonLine(ev observer.Event) {
	typ := "broadcast"
	if ev.Type == observer.EventNameArrived {
		typ = "name"
	}
	rec := jsonEvent{
		Type:    typ,
		Elapsed: ev.Elapsed.Seconds(),
		Address: ev.Addr,
		Tag:     string(rune(ev.Tag)),
		Name:    ev.Name,
		Channel: ev.Channel,
		Signal:  SignalLabel(p.levels, ev.RSSI),
		RSSI:    ev.RSSI,
	}
	if ev.Type == observer.EventBroadcast {
		rec.Value = ev.Value.String()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		p.logger.WithError(err).Warn("event encoding failed")
		return
	}
	fmt.Fprintf(p.out, "%s\n", data)
}

// Summary renders the teardown report.
func (p *Printer) Summary(s observer.Summary) {
	if p.format == FormatJSON {
		data, err := json.Marshal(s)
		if err != nil {
			p.logger.WithError(err).Warn("summary encoding failed")
			return
		}
		fmt.Fprintf(p.out, "%s\n", data)
		return
	}

	elapsed := s.Elapsed.Round(time.Second)
	hrs := int(elapsed / time.Hour)
	mins := int(elapsed/time.Minute) % 60
	secs := int(elapsed/time.Second) % 60

	fmt.Fprintf(p.out, "\nScan stopped after %02d:%02d:%02d\n", hrs, mins, secs)
	fmt.Fprintf(p.out, "  Events received     : %8d\n", s.Events)
	fmt.Fprintf(p.out, "  Broadcast packets   : %8d\n", s.Matched)
	fmt.Fprintf(p.out, "  Packets processed   : %8d\n", s.Processed)
	fmt.Fprintf(p.out, "  Deduped (suppressed): %8d\n", s.Suppressed)
	fmt.Fprintf(p.out, "  Lines emitted       : %8d\n", s.Lines)
	dropNote := "  (none)"
	if s.Drops > 0 {
		dropNote = "  *** packets lost"
	}
	fmt.Fprintf(p.out, "  Queue drops         : %8d%s\n", s.Drops, dropNote)
	fmt.Fprintf(p.out, "  Hubs seen           : %8d\n", len(s.Peers))
	for _, hub := range s.Peers {
		label := ""
		if hub.Name != "" {
			label = fmt.Sprintf(" (%s)", hub.Name)
		}
		fmt.Fprintf(p.out, "    [%c] %s%s\n", hub.Tag, hub.Addr, label)
	}
}

func (p *Printer) colorFor(idx int) *color.Color {
	if idx < 0 || idx >= len(p.palette) {
		idx = 0
	}
	return p.palette[idx]
}
