//go:build linux

package goble

import (
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

// DeviceFactory creates ble.Device instances (overridable in tests). On
// linux the scan type, interval and window map directly onto the HCI scan
// parameters, in 0.625 ms units.
var DeviceFactory = func(active bool, interval, window time.Duration) (ble.Device, error) {
	scanType := uint8(0x00) // passive
	if active {
		scanType = 0x01
	}
	return linux.NewDevice(ble.OptScanParams(cmd.LESetScanParameters{
		LEScanType:           scanType,
		LEScanInterval:       hciUnits(interval),
		LEScanWindow:         hciUnits(window),
		OwnAddressType:       0x00,
		ScanningFilterPolicy: 0x00,
	}))
}

// hciUnits converts a duration to the HCI 0.625 ms tick, clamped to the
// spec range 0x0004..0x4000.
func hciUnits(d time.Duration) uint16 {
	units := d.Microseconds() / 625
	if units < 0x0004 {
		units = 0x0004
	}
	if units > 0x4000 {
		units = 0x4000
	}
	return uint16(units)
}
