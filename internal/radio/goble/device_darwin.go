//go:build darwin

package goble

import (
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// DeviceFactory creates ble.Device instances (overridable in tests).
// CoreBluetooth owns the scan timing on darwin, so interval and window are
// accepted for interface symmetry and left to the platform; active scanning
// is always on.
var DeviceFactory = func(active bool, interval, window time.Duration) (ble.Device, error) {
	_ = active
	_ = interval
	_ = window
	return darwin.NewDevice()
}
