package peer

import "github.com/srg/brickscan/internal/radio"

// NameCache holds friendly names captured before their owning hub has
// produced a first broadcast packet. Entries live in one of two stages:
// held here, or promoted onto a Peer record and removed. A held name whose
// identity only ever produces non-protocol traffic is purged, which keeps
// unrelated nearby devices out of the registry.
type NameCache struct {
	pending map[radio.Addr]string
}

// NewNameCache creates an empty cache.
func NewNameCache() *NameCache {
	return &NameCache{pending: make(map[radio.Addr]string)}
}

// Hold stores a name fragment for an unconfirmed identity, replacing any
// earlier fragment.
func (c *NameCache) Hold(addr radio.Addr, name string) {
	if name == "" {
		return
	}
	c.pending[addr] = name
}

// Take removes and returns the held name for addr, if any. Used at
// promotion time so a second broadcast packet finds nothing to re-promote.
func (c *NameCache) Take(addr radio.Addr) (string, bool) {
	name, ok := c.pending[addr]
	if ok {
		delete(c.pending, addr)
	}
	return name, ok
}

// Purge discards the held name for addr, if any.
func (c *NameCache) Purge(addr radio.Addr) {
	delete(c.pending, addr)
}

// Len returns the number of held names.
func (c *NameCache) Len() int {
	return len(c.pending)
}
