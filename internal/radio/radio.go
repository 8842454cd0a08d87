// Package radio defines the boundary to the platform BLE layer: the captured
// advertising frame, the scan-control surface, and the delivery callbacks.
//
// Everything above this package is platform-independent; the go-ble backed
// implementation lives in the goble subpackage.
package radio

import (
	"fmt"
	"strings"
	"time"
)

// FrameKind distinguishes the two broadcast frame kinds data is captured from.
type FrameKind uint8

const (
	// FrameAdvertisement is a regular advertising PDU.
	FrameAdvertisement FrameKind = iota
	// FrameScanResponse is a scan-response PDU, only delivered during active scans.
	FrameScanResponse
)

func (k FrameKind) String() string {
	switch k {
	case FrameAdvertisement:
		return "advertisement"
	case FrameScanResponse:
		return "scan-response"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// AddrLen is the width of a BLE hardware address.
const AddrLen = 6

// MaxPayload is the legacy advertising data unit ceiling. Container nesting
// in the broadcast encoding is self-limiting because of it.
const MaxPayload = 31

// Addr is a fixed-width BLE hardware address, stored most significant byte first.
type Addr [AddrLen]byte

// ParseAddr parses "AA:BB:CC:DD:EE:FF" (case-insensitive) into an Addr.
func ParseAddr(s string) (Addr, error) {
	var a Addr
	parts := strings.Split(s, ":")
	if len(parts) != AddrLen {
		return a, fmt.Errorf("invalid address %q: want %d octets, got %d", s, AddrLen, len(parts))
	}
	for i, p := range parts {
		var b byte
		if _, err := fmt.Sscanf(p, "%02x", &b); err != nil || len(p) != 2 {
			return a, fmt.Errorf("invalid address %q: bad octet %q", s, p)
		}
		a[i] = b
	}
	return a, nil
}

// String formats the address as AA:BB:CC:DD:EE:FF.
func (a Addr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Frame is one captured advertising event. It is immutable once enqueued:
// the payload is copied into the fixed-size array at capture time so the
// frame owns its bytes and the capture path never allocates.
type Frame struct {
	Addr      Addr
	Kind      FrameKind
	RSSI      int8 // dBm
	Len       uint8
	Payload   [MaxPayload]byte
	Timestamp time.Time
}

// NewFrame builds a Frame, copying payload and truncating it at MaxPayload.
func NewFrame(addr Addr, kind FrameKind, rssi int, payload []byte, ts time.Time) Frame {
	f := Frame{Addr: addr, Kind: kind, RSSI: clampRSSI(rssi), Timestamp: ts}
	n := copy(f.Payload[:], payload)
	f.Len = uint8(n)
	return f
}

// Data returns the valid portion of the payload.
func (f *Frame) Data() []byte {
	return f.Payload[:f.Len]
}

func clampRSSI(rssi int) int8 {
	if rssi < -128 {
		return -128
	}
	if rssi > 127 {
		return 127
	}
	return int8(rssi)
}

// Controller is the platform scan-control surface consumed by the scan
// health monitor. StartScan is fire-and-forget: delivery happens through the
// frame callback registered on the concrete controller, and termination of a
// scan for any reason is reported through the stopped callback.
type Controller interface {
	// StartScan begins (or re-begins) scanning with the given parameters.
	// Starting while a scan is already active first tears the old one down.
	StartScan(active bool, interval, window time.Duration) error

	// StopScan terminates the current scan. Stopping an idle controller is a no-op.
	StopScan() error
}

// Handler receives captured frames. It is invoked on the radio delivery
// goroutine and must not block; hand the frame off and return.
type Handler func(Frame)

// StoppedHandler is invoked on the radio delivery goroutine whenever a scan
// terminates, intentionally or not.
type StoppedHandler func()
