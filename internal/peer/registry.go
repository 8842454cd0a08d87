// Package peer tracks confirmed broadcasting hubs and resolves their
// friendly names. A hub enters the registry on its first protocol-matching
// packet and stays for the process lifetime; state here is owned by the
// dispatch goroutine and needs no locking.
package peer

import (
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/brickscan/internal/protocol"
	"github.com/srg/brickscan/internal/radio"
)

// tagLetters is the size of the tag space before letters recycle.
const tagLetters = 26

// Peer is one confirmed broadcasting hub.
type Peer struct {
	Addr       radio.Addr
	AddrString string // formatted once at creation, reused on every line
	Tag        byte   // 'A'..'Z', first-seen order, stable for the process
	ColorIndex int    // deterministic palette slot derived from arrival order
	Name       string // empty until a name fragment resolves

	Channel   uint8
	LastValue protocol.Value
	HasValue  bool

	RSSI float64 // exponential moving average, seeded with the first sample

	Packets uint64
	Bytes   uint64
}

// Observation is the outcome of feeding one decoded broadcast into the
// registry.
type Observation struct {
	Peer    *Peer
	New     bool // first packet from this identity
	Changed bool // value differs from the stored one; suppressed otherwise
}

// Registry maps hub identities to peers, preserving first-seen order for
// the teardown summary. It owns the pending-name cache so promotion happens
// inside Observe.
type Registry struct {
	peers       *orderedmap.OrderedMap[radio.Addr, *Peer]
	names       *NameCache
	alpha       float64
	paletteSize int
	dedup       bool
	suppressed  uint64
	logger      *logrus.Logger
}

// NewRegistry creates a registry. alpha is the RSSI smoothing factor in
// (0,1]; paletteSize bounds the color index; dedup enables value-change
// suppression.
func NewRegistry(alpha float64, paletteSize int, dedup bool, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	if paletteSize <= 0 {
		paletteSize = 1
	}
	return &Registry{
		peers:       orderedmap.New[radio.Addr, *Peer](),
		names:       NewNameCache(),
		alpha:       alpha,
		paletteSize: paletteSize,
		dedup:       dedup,
		logger:      logger,
	}
}

// Observe feeds one decoded broadcast into the registry: creates the peer on
// first contact (promoting any held name), updates the smoothed RSSI and
// counters, and decides whether the value is a change worth emitting.
func (r *Registry) Observe(addr radio.Addr, channel uint8, value protocol.Value, rssi int, payloadLen int) Observation {
	p, ok := r.peers.Get(addr)
	if !ok {
		idx := r.peers.Len()
		p = &Peer{
			Addr:       addr,
			AddrString: addr.String(),
			Tag:        'A' + byte(idx%tagLetters),
			ColorIndex: idx % r.paletteSize,
			RSSI:       float64(rssi), // EMA seeds with the raw first sample
		}
		if name, held := r.names.Take(addr); held {
			p.Name = name
		}
		r.peers.Set(addr, p)
		r.logger.WithFields(logrus.Fields{
			"address": p.AddrString,
			"tag":     string(p.Tag),
			"name":    p.Name,
		}).Info("new hub confirmed")
	} else {
		p.RSSI += r.alpha * (float64(rssi) - p.RSSI)
	}

	p.Packets++
	p.Bytes += uint64(payloadLen)

	changed := !p.HasValue || channel != p.Channel || !p.LastValue.Equal(value)
	p.Channel = channel
	p.LastValue = value
	p.HasValue = true

	if !r.dedup {
		changed = true
	}
	if !changed {
		r.suppressed++
	}

	return Observation{Peer: p, New: !ok, Changed: changed}
}

// ResolveName feeds a name fragment for addr into the registry. For a
// confirmed peer the name is updated in place (hubs may legitimately
// re-advertise under a new name); otherwise the fragment is held for
// promotion. Returns the peer and true when a confirmed peer's name
// actually changed, so the caller can surface a notice.
func (r *Registry) ResolveName(addr radio.Addr, name string) (*Peer, bool) {
	if name == "" {
		return nil, false
	}
	if p, ok := r.peers.Get(addr); ok {
		if p.Name == name {
			return p, false
		}
		r.logger.WithFields(logrus.Fields{
			"address": p.AddrString,
			"tag":     string(p.Tag),
			"name":    name,
		}).Debug("hub name resolved")
		p.Name = name
		return p, true
	}
	r.names.Hold(addr, name)
	return nil, false
}

// PurgePending discards a held name for an identity that turned out to be
// non-protocol traffic, if that identity has no peer record.
func (r *Registry) PurgePending(addr radio.Addr) {
	if _, ok := r.peers.Get(addr); !ok {
		r.names.Purge(addr)
	}
}

// Lookup returns the peer for addr, if confirmed.
func (r *Registry) Lookup(addr radio.Addr) (*Peer, bool) {
	return r.peers.Get(addr)
}

// Len returns the number of confirmed peers.
func (r *Registry) Len() int {
	return r.peers.Len()
}

// Pending returns the number of held, unpromoted names.
func (r *Registry) Pending() int {
	return r.names.Len()
}

// Suppressed returns how many observations were suppressed by dedup.
func (r *Registry) Suppressed() uint64 {
	return r.suppressed
}

// Each visits peers in first-seen order.
func (r *Registry) Each(fn func(*Peer)) {
	for pair := r.peers.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Value)
	}
}
