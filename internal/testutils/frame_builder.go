package testutils

import (
	"fmt"
	"time"

	"github.com/srg/brickscan/internal/protocol"
	"github.com/srg/brickscan/internal/radio"
)

// FrameBuilder assembles capture frames with well-formed advertising data
// for tests. It panics on invalid input since it only runs in test setup.
//
// Example:
//
//	frame := NewFrameBuilder().
//	    WithAddress("90:84:2b:01:02:03").
//	    WithRSSI(-60).
//	    WithBroadcast(3, protocol.Int(42)).
//	    Build()
type FrameBuilder struct {
	addr    radio.Addr
	kind    radio.FrameKind
	rssi    int
	when    time.Time
	records [][]byte
}

// NewFrameBuilder creates a builder with a fixed default address, RSSI -60
// and the current time.
func NewFrameBuilder() *FrameBuilder {
	addr, _ := radio.ParseAddr("90:84:2b:aa:bb:cc")
	return &FrameBuilder{
		addr: addr,
		kind: radio.FrameAdvertisement,
		rssi: -60,
		when: time.Now(),
	}
}

// WithAddress sets the source address from its textual form.
func (b *FrameBuilder) WithAddress(s string) *FrameBuilder {
	addr, err := radio.ParseAddr(s)
	if err != nil {
		panic(fmt.Sprintf("FrameBuilder: bad address %q: %v", s, err))
	}
	b.addr = addr
	return b
}

// AsScanResponse marks the frame as a scan response instead of an
// advertisement.
func (b *FrameBuilder) AsScanResponse() *FrameBuilder {
	b.kind = radio.FrameScanResponse
	return b
}

// WithRSSI sets the received signal strength.
func (b *FrameBuilder) WithRSSI(dbm int) *FrameBuilder {
	b.rssi = dbm
	return b
}

// WithTimestamp sets the capture time.
func (b *FrameBuilder) WithTimestamp(t time.Time) *FrameBuilder {
	b.when = t
	return b
}

// WithRecord appends a raw advertising data element.
func (b *FrameBuilder) WithRecord(adType byte, data []byte) *FrameBuilder {
	if len(data) > 29 {
		panic(fmt.Sprintf("FrameBuilder: AD element data too long (%d bytes)", len(data)))
	}
	rec := make([]byte, 0, len(data)+2)
	rec = append(rec, byte(len(data)+1), adType)
	rec = append(rec, data...)
	b.records = append(b.records, rec)
	return b
}

// WithFlags appends a flags element (AD type 0x01).
func (b *FrameBuilder) WithFlags(flags byte) *FrameBuilder {
	return b.WithRecord(0x01, []byte{flags})
}

// WithName appends a complete local name element (AD type 0x09).
func (b *FrameBuilder) WithName(name string) *FrameBuilder {
	return b.WithRecord(0x09, []byte(name))
}

// WithShortenedName appends a shortened local name element (AD type 0x08).
func (b *FrameBuilder) WithShortenedName(name string) *FrameBuilder {
	return b.WithRecord(0x08, []byte(name))
}

// WithManufacturerData appends a manufacturer data element (AD type 0xFF)
// with the given raw contents, company identifier included.
func (b *FrameBuilder) WithManufacturerData(data []byte) *FrameBuilder {
	return b.WithRecord(0xFF, data)
}

// WithBroadcast appends a manufacturer data element carrying an encoded
// hub broadcast on the given channel.
func (b *FrameBuilder) WithBroadcast(channel uint8, v protocol.Value) *FrameBuilder {
	data, err := protocol.MarshalBroadcast(channel, v)
	if err != nil {
		panic(fmt.Sprintf("FrameBuilder: cannot encode broadcast: %v", err))
	}
	return b.WithRecord(0xFF, data)
}

// Payload returns the assembled advertising data without building a frame.
func (b *FrameBuilder) Payload() []byte {
	var payload []byte
	for _, rec := range b.records {
		payload = append(payload, rec...)
	}
	if len(payload) > radio.MaxPayload {
		panic(fmt.Sprintf("FrameBuilder: payload %d bytes exceeds %d", len(payload), radio.MaxPayload))
	}
	return payload
}

// Build assembles the frame.
func (b *FrameBuilder) Build() radio.Frame {
	return radio.NewFrame(b.addr, b.kind, b.rssi, b.Payload(), b.when)
}
