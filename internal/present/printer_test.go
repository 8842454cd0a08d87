package present_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/brickscan/internal/observer"
	"github.com/srg/brickscan/internal/present"
	"github.com/srg/brickscan/internal/protocol"
	"github.com/srg/brickscan/internal/testutils"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func textPrinter(out *bytes.Buffer) *present.Printer {
	return present.NewPrinter(out, present.ThemeDark, nil, present.FormatText, quietLogger())
}

func TestSignalLabel(t *testing.T) {
	tests := []struct {
		dbm  float64
		want string
	}{
		{-40, "Very close"},
		{-55, "Very close"},
		{-56, "Nearby"},
		{-70, "Nearby"},
		{-75, "Far"},
		{-80, "Far"},
		{-81, "Weak"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, present.SignalLabel(present.DefaultSignalLevels, tc.dbm), "%g dBm", tc.dbm)
	}
}

func TestPaletteSizes(t *testing.T) {
	assert.Equal(t, len(present.Palette(present.ThemeDark)), len(present.Palette(present.ThemeLight)))
	assert.NotEmpty(t, present.Palette(present.ThemeDark))
}

func TestLineTextFormat(t *testing.T) {
	var out bytes.Buffer
	p := textPrinter(&out)

	p.Line(observer.Event{
		Type:    observer.EventBroadcast,
		Elapsed: 5 * time.Second,
		Addr:    "90:84:2b:00:00:01",
		Tag:     'A',
		Name:    "Hub",
		Channel: 3,
		RSSI:    -60,
		Value:   protocol.Int(42),
	})

	testutils.NewTextAsserter(t).Assert(out.String(),
		"       5s 90:84:2b:00:00:01 [A] Hub            3 Nearby      -60dBm 42\n")
}

func TestLineNameArrived(t *testing.T) {
	var out bytes.Buffer
	p := textPrinter(&out)

	p.Line(observer.Event{
		Type:    observer.EventNameArrived,
		Elapsed: 12 * time.Second,
		Addr:    "90:84:2b:00:00:02",
		Tag:     'B',
		Name:    "Move Hub",
	})

	testutils.NewTextAsserter(t).Assert(out.String(),
		"      12s 90:84:2b:00:00:02 [B] name resolved: Move Hub\n")
}

func TestLineJSONFormat(t *testing.T) {
	var out bytes.Buffer
	p := present.NewPrinter(&out, present.ThemeDark, nil, present.FormatJSON, quietLogger())

	p.Line(observer.Event{
		Type:    observer.EventBroadcast,
		Elapsed: 1500 * time.Millisecond,
		Addr:    "90:84:2b:00:00:01",
		Tag:     'A',
		Channel: 7,
		RSSI:    -52.5,
		Value:   protocol.Tuple(protocol.Int(1), protocol.Bool(true)),
	})

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, "broadcast", rec["type"])
	assert.Equal(t, 1.5, rec["elapsed_sec"])
	assert.Equal(t, "90:84:2b:00:00:01", rec["address"])
	assert.Equal(t, "A", rec["tag"])
	assert.Equal(t, float64(7), rec["channel"])
	assert.Equal(t, "Very close", rec["signal"])
	assert.Equal(t, "(1, true)", rec["value"])
}

func TestBannerAndHeaderSuppressedInJSONMode(t *testing.T) {
	var out bytes.Buffer
	p := present.NewPrinter(&out, present.ThemeDark, nil, present.FormatJSON, quietLogger())

	p.Banner("v1.0.0", true, true)
	p.Header()
	assert.Empty(t, out.String())
}

func TestBannerText(t *testing.T) {
	var out bytes.Buffer
	p := textPrinter(&out)

	p.Banner("v1.0.0", true, false)
	assert.Contains(t, out.String(), "brickscan v1.0.0")
	assert.Contains(t, out.String(), "dedup=on")
	assert.Contains(t, out.String(), "active=off")
}

func TestSummaryText(t *testing.T) {
	var out bytes.Buffer
	p := textPrinter(&out)

	p.Summary(observer.Summary{
		Elapsed:    3661 * time.Second,
		Events:     1200,
		Matched:    400,
		Processed:  410,
		Suppressed: 350,
		Lines:      50,
		Drops:      0,
		Peers: []observer.PeerSummary{
			{Tag: 'A', Addr: "90:84:2b:00:00:01", Name: "Hub A"},
			{Tag: 'B', Addr: "90:84:2b:00:00:02"},
		},
	})

	text := out.String()
	assert.Contains(t, text, "Scan stopped after 01:01:01")
	assert.Contains(t, text, "Events received     :     1200")
	assert.Contains(t, text, "Deduped (suppressed):      350")
	assert.Contains(t, text, "Queue drops         :        0  (none)")
	assert.Contains(t, text, "Hubs seen           :        2")
	assert.Contains(t, text, "[A] 90:84:2b:00:00:01 (Hub A)")
	assert.Contains(t, text, "[B] 90:84:2b:00:00:02\n")
}

func TestSummaryFlagsDrops(t *testing.T) {
	var out bytes.Buffer
	p := textPrinter(&out)

	p.Summary(observer.Summary{Drops: 7})
	assert.Contains(t, out.String(), "*** packets lost")
}

func TestSummaryJSON(t *testing.T) {
	var out bytes.Buffer
	p := present.NewPrinter(&out, present.ThemeDark, nil, present.FormatJSON, quietLogger())

	p.Summary(observer.Summary{Events: 10, Lines: 2})

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, float64(10), rec["events_received"])
	assert.Equal(t, float64(2), rec["lines_emitted"])
}
