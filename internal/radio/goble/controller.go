// Package goble implements radio.Controller on go-ble. The platform device
// is created lazily on the first StartScan with the scan parameters mapped
// to HCI options where the platform supports it.
package goble

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/brickscan/internal/groutine"
	"github.com/srg/brickscan/internal/radio"
)

// AD element types re-synthesized from go-ble's parsed accessors.
const (
	adTypeCompleteName     = 0x09
	adTypeManufacturerData = 0xFF
)

// Controller runs ble.Device.Scan on a named goroutine per scan. Delivery
// happens through the frame handler on go-ble's advertisement goroutine,
// the "interrupt context" of this program. Scan terminations the controller
// did not request itself are reported through the stopped handler, which is
// how the health monitor learns about unexpected stops.
type Controller struct {
	handler radio.Handler
	stopped radio.StoppedHandler
	logger  *logrus.Logger

	mu     sync.Mutex
	dev    ble.Device
	cancel context.CancelFunc
}

// NewController wires delivery callbacks. Neither may be nil.
func NewController(handler radio.Handler, stopped radio.StoppedHandler, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	if handler == nil {
		handler = func(radio.Frame) {}
	}
	if stopped == nil {
		stopped = func() {}
	}
	return &Controller{handler: handler, stopped: stopped, logger: logger}
}

// StartScan begins scanning. An already-running scan is torn down first, so
// restart amounts to calling StartScan again. Duplicate advertisements are
// requested from the platform: retransmission filtering is the dedup
// layer's job, and RSSI smoothing wants every reading.
func (c *Controller) StartScan(active bool, interval, window time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if c.dev == nil {
		dev, err := DeviceFactory(active, interval, window)
		if err != nil {
			return err
		}
		c.dev = dev
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	dev := c.dev

	groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
		err := dev.Scan(ctx, true, c.onAdvertisement)
		if errors.Is(err, context.Canceled) {
			// This controller canceled the scan itself, from StopScan or
			// from the teardown at the top of StartScan. The exit is
			// delivered asynchronously, often after the replacement scan
			// is already up, so reporting it would misattribute a
			// deliberate stop as a platform failure.
			return
		}
		if err != nil {
			c.logger.WithError(err).Warn("scan terminated with error")
		}
		c.stopped()
	})

	c.logger.WithFields(logrus.Fields{
		"active":   active,
		"interval": interval,
		"window":   window,
	}).Debug("scan started")
	return nil
}

// StopScan cancels the running scan. Idempotent; stopping an idle
// controller is a no-op.
func (c *Controller) StopScan() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return nil
}

// onAdvertisement converts one go-ble advertisement to a radio.Frame and
// hands it off. go-ble exposes parsed accessors rather than raw AD bytes and
// merges scan responses into the advertisement, so the standard
// [len][type][data] layout is rebuilt here; the decoder then sees the same
// wire shape on the live path as in tests.
func (c *Controller) onAdvertisement(a ble.Advertisement) {
	addr, err := radio.ParseAddr(a.Addr().String())
	if err != nil {
		// Some platforms report UUID-style identifiers instead of
		// hardware addresses; fold those into a fixed-width identity.
		addr = foldIdentity(a.Addr().String())
	}

	var payload []byte
	if md := a.ManufacturerData(); len(md) > 0 && len(md)+1 <= 0xFF {
		payload = append(payload, byte(len(md)+1), adTypeManufacturerData)
		payload = append(payload, md...)
	}
	if name := a.LocalName(); name != "" && len(name)+1 <= 0xFF {
		payload = append(payload, byte(len(name)+1), adTypeCompleteName)
		payload = append(payload, name...)
	}

	c.handler(radio.NewFrame(addr, radio.FrameAdvertisement, a.RSSI(), payload, time.Now()))
}

// foldIdentity hashes an arbitrary identity string into the fixed address
// width (FNV-1a folded over six bytes). Stable within a process run, which
// is all the registry needs.
func foldIdentity(s string) radio.Addr {
	var a radio.Addr
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	for i := 0; i < radio.AddrLen; i++ {
		a[i] = byte(h >> (8 * i))
	}
	return a
}
