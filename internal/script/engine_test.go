package script

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/brickscan/internal/observer"
	"github.com/srg/brickscan/internal/protocol"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	e := NewEngine(logger)
	t.Cleanup(e.Close)
	return e
}

func TestLoadRequiresHook(t *testing.T) {
	e := newTestEngine(t)
	err := e.Load(`x = 1`, "no-hook.lua")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "on_broadcast")
}

func TestLoadReportsSyntaxError(t *testing.T) {
	e := newTestEngine(t)
	err := e.Load(`function on_broadcast(ev`, "broken.lua")
	assert.Error(t, err)
}

func TestOnBroadcastReceivesEventTable(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Load(`
		function on_broadcast(ev)
			seen_channel = ev.channel
			seen_tag = ev.tag
			seen_value = ev.value[1] + ev.value[2]
		end
	`, "hook.lua"))

	ev := observer.Event{
		Type:    observer.EventBroadcast,
		Elapsed: 3 * time.Second,
		Addr:    "90:84:2b:01:02:03",
		Tag:     'A',
		Channel: 7,
		RSSI:    -61.5,
		Value:   protocol.Tuple(protocol.Int(40), protocol.Int(2)),
	}
	require.NoError(t, e.OnBroadcast(ev))

	e.mu.Lock()
	L := e.state
	L.GetGlobal("seen_channel")
	assert.Equal(t, 7, int(L.ToInteger(-1)))
	L.GetGlobal("seen_tag")
	assert.Equal(t, "A", L.ToString(-1))
	L.GetGlobal("seen_value")
	assert.Equal(t, float64(42), L.ToNumber(-1))
	L.Pop(3)
	e.mu.Unlock()
}

func TestHookErrorLeavesStateUsable(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Load(`
		calls = 0
		function on_broadcast(ev)
			calls = calls + 1
			if calls == 1 then error("boom") end
		end
	`, "hook.lua"))

	ev := observer.Event{Type: observer.EventBroadcast, Value: protocol.Int(1)}
	assert.Error(t, e.OnBroadcast(ev))
	assert.NoError(t, e.OnBroadcast(ev))
}
