package capture_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/brickscan/internal/capture"
	"github.com/srg/brickscan/internal/radio"
	"github.com/srg/brickscan/internal/testutils"
)

func frameWithRSSI(rssi int) radio.Frame {
	return testutils.NewFrameBuilder().WithRSSI(rssi).Build()
}

func TestPushPopOrder(t *testing.T) {
	b := capture.NewBuffer(8)

	for i := 0; i < 5; i++ {
		require.True(t, b.Push(frameWithRSSI(-40-i)))
	}
	assert.Equal(t, 5, b.Len())

	for i := 0; i < 5; i++ {
		f, ok := b.Pop()
		require.True(t, ok)
		assert.Equal(t, int8(-40-i), f.RSSI)
	}
	_, ok := b.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())
}

func TestOverflowDropsNewest(t *testing.T) {
	b := capture.NewBuffer(4)

	for i := 0; i < 4; i++ {
		require.True(t, b.Push(frameWithRSSI(-40-i)))
	}
	// one past capacity: refused, counted, buffered frames untouched
	assert.False(t, b.Push(frameWithRSSI(-99)))
	assert.Equal(t, uint64(1), b.Drops())
	assert.Equal(t, 4, b.Len())

	for i := 0; i < 4; i++ {
		f, ok := b.Pop()
		require.True(t, ok)
		assert.Equal(t, int8(-40-i), f.RSSI)
	}
	_, ok := b.Pop()
	assert.False(t, ok)
}

func TestCapacityRecoversAfterPop(t *testing.T) {
	b := capture.NewBuffer(2)

	require.True(t, b.Push(frameWithRSSI(-40)))
	require.True(t, b.Push(frameWithRSSI(-41)))
	require.False(t, b.Push(frameWithRSSI(-42)))

	_, ok := b.Pop()
	require.True(t, ok)

	assert.True(t, b.Push(frameWithRSSI(-43)))
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 2, b.Cap())
}

func TestZeroCapacityPanics(t *testing.T) {
	assert.Panics(t, func() { capture.NewBuffer(0) })
}

// Interleaved producer/consumer: every frame either arrives intact and in
// order, or is reported dropped. Run with -race.
func TestConcurrentPushPop(t *testing.T) {
	const total = 10000
	b := capture.NewBuffer(64)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			b.Push(testutils.NewFrameBuilder().
				WithTimestamp(time.Unix(0, int64(i))).
				Build())
		}
	}()

	var received int
	last := int64(-1)
	for {
		f, ok := b.Pop()
		if !ok {
			if received+int(b.Drops()) >= total && b.Len() == 0 {
				break
			}
			continue
		}
		ts := f.Timestamp.UnixNano()
		require.Greater(t, ts, last, "frames must pop in push order")
		last = ts
		received++
	}
	wg.Wait()

	assert.Equal(t, total, received+int(b.Drops()))
}
