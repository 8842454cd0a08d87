package peer_test

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/brickscan/internal/peer"
	"github.com/srg/brickscan/internal/protocol"
	"github.com/srg/brickscan/internal/radio"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func addr(t *testing.T, s string) radio.Addr {
	t.Helper()
	a, err := radio.ParseAddr(s)
	require.NoError(t, err)
	return a
}

func newRegistry(dedup bool) *peer.Registry {
	return peer.NewRegistry(0.2, 10, dedup, quietLogger())
}

func TestFirstPacketConfirmsPeer(t *testing.T) {
	r := newRegistry(true)
	a := addr(t, "90:84:2b:00:00:01")

	obs := r.Observe(a, 3, protocol.Int(1), -60, 8)

	require.NotNil(t, obs.Peer)
	assert.True(t, obs.New)
	assert.True(t, obs.Changed, "first value is always a change")
	assert.Equal(t, byte('A'), obs.Peer.Tag)
	assert.Equal(t, 0, obs.Peer.ColorIndex)
	assert.Equal(t, "90:84:2B:00:00:01", obs.Peer.AddrString)
	assert.Equal(t, -60.0, obs.Peer.RSSI, "EMA seeds with the raw first sample")
	assert.Equal(t, 1, r.Len())
}

func TestTagsFollowArrivalOrder(t *testing.T) {
	r := newRegistry(true)
	for i := 0; i < 3; i++ {
		a := addr(t, fmt.Sprintf("90:84:2b:00:00:%02x", i+1))
		obs := r.Observe(a, 0, protocol.Int(int64(i)), -50, 8)
		assert.Equal(t, byte('A'+i), obs.Peer.Tag)
		assert.Equal(t, i, obs.Peer.ColorIndex)
	}

	var tags []byte
	r.Each(func(p *peer.Peer) { tags = append(tags, p.Tag) })
	assert.Equal(t, []byte{'A', 'B', 'C'}, tags)
}

func TestTagsRecycleAfterZ(t *testing.T) {
	r := newRegistry(true)
	for i := 0; i < 27; i++ {
		a := addr(t, fmt.Sprintf("90:84:2b:00:01:%02x", i))
		obs := r.Observe(a, 0, protocol.Int(0), -50, 8)
		if i == 26 {
			assert.Equal(t, byte('A'), obs.Peer.Tag)
		}
	}
	assert.Equal(t, 27, r.Len())
}

func TestDedupSuppressesUnchangedValue(t *testing.T) {
	r := newRegistry(true)
	a := addr(t, "90:84:2b:00:00:01")
	v := protocol.List(protocol.Int(1), protocol.Int(2), protocol.Int(3))

	first := r.Observe(a, 3, v, -60, 10)
	assert.True(t, first.Changed)

	repeat := r.Observe(a, 3, protocol.List(protocol.Int(1), protocol.Int(2), protocol.Int(3)), -61, 10)
	assert.False(t, repeat.Changed)
	assert.Equal(t, uint64(1), r.Suppressed())

	changed := r.Observe(a, 3, protocol.List(protocol.Int(1), protocol.Int(2), protocol.Int(4)), -61, 10)
	assert.True(t, changed.Changed)
	assert.Equal(t, uint64(1), r.Suppressed())
}

func TestChannelSwitchIsAChange(t *testing.T) {
	r := newRegistry(true)
	a := addr(t, "90:84:2b:00:00:01")

	r.Observe(a, 3, protocol.Int(1), -60, 8)
	obs := r.Observe(a, 4, protocol.Int(1), -60, 8)
	assert.True(t, obs.Changed, "same value on a new channel must emit")
}

func TestDedupOffEmitsEverything(t *testing.T) {
	r := newRegistry(false)
	a := addr(t, "90:84:2b:00:00:01")

	r.Observe(a, 3, protocol.Int(1), -60, 8)
	obs := r.Observe(a, 3, protocol.Int(1), -60, 8)
	assert.True(t, obs.Changed)
	assert.Equal(t, uint64(0), r.Suppressed())
}

func TestRSSISmoothing(t *testing.T) {
	r := newRegistry(true)
	a := addr(t, "90:84:2b:00:00:01")

	r.Observe(a, 0, protocol.Int(1), -60, 8)
	obs := r.Observe(a, 0, protocol.Int(2), -80, 8)

	// alpha*new + (1-alpha)*old = 0.2*-80 + 0.8*-60
	assert.InDelta(t, -64.0, obs.Peer.RSSI, 1e-9)
}

func TestPacketAndByteCounters(t *testing.T) {
	r := newRegistry(true)
	a := addr(t, "90:84:2b:00:00:01")

	r.Observe(a, 0, protocol.Int(1), -60, 8)
	obs := r.Observe(a, 0, protocol.Int(2), -60, 12)
	assert.Equal(t, uint64(2), obs.Peer.Packets)
	assert.Equal(t, uint64(20), obs.Peer.Bytes)
}

func TestHeldNamePromotedExactlyOnce(t *testing.T) {
	r := newRegistry(true)
	a := addr(t, "90:84:2b:00:00:01")

	// name arrives before any protocol packet: held, no peer created
	p, changed := r.ResolveName(a, "Technic Hub")
	assert.Nil(t, p)
	assert.False(t, changed)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, r.Pending())

	// first packet promotes the held name
	obs := r.Observe(a, 3, protocol.Int(1), -60, 8)
	assert.Equal(t, "Technic Hub", obs.Peer.Name)
	assert.Equal(t, 0, r.Pending(), "promotion consumes the held entry")
}

func TestNameOnlyTrafficCreatesNoPeer(t *testing.T) {
	r := newRegistry(true)
	a := addr(t, "90:84:2b:00:00:01")

	for i := 0; i < 5; i++ {
		r.ResolveName(a, "Chatty Headphones")
	}
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, r.Pending())
}

func TestLateNameUpdatesConfirmedPeer(t *testing.T) {
	r := newRegistry(true)
	a := addr(t, "90:84:2b:00:00:01")

	r.Observe(a, 3, protocol.Int(1), -60, 8)

	p, changed := r.ResolveName(a, "City Hub")
	require.NotNil(t, p)
	assert.True(t, changed)
	assert.Equal(t, "City Hub", p.Name)

	// same name again is not a change
	_, changed = r.ResolveName(a, "City Hub")
	assert.False(t, changed)

	// renames are honored
	_, changed = r.ResolveName(a, "City Hub 2")
	assert.True(t, changed)
}

func TestEmptyNameIgnored(t *testing.T) {
	r := newRegistry(true)
	a := addr(t, "90:84:2b:00:00:01")

	p, changed := r.ResolveName(a, "")
	assert.Nil(t, p)
	assert.False(t, changed)
	assert.Equal(t, 0, r.Pending())
}

func TestPurgePendingDropsOnlyUnconfirmed(t *testing.T) {
	r := newRegistry(true)
	stranger := addr(t, "90:84:2b:00:00:01")
	hub := addr(t, "90:84:2b:00:00:02")

	r.ResolveName(stranger, "Not A Hub")
	r.Observe(hub, 3, protocol.Int(1), -60, 8)
	r.ResolveName(hub, "Real Hub")

	r.PurgePending(stranger)
	r.PurgePending(hub)

	assert.Equal(t, 0, r.Pending())
	p, ok := r.Lookup(hub)
	require.True(t, ok)
	assert.Equal(t, "Real Hub", p.Name)
}
