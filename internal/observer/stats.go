package observer

import (
	"sync/atomic"
	"time"
)

// Stats aggregates the process-wide diagnostic counters as fields on an
// explicit struct owned by the Observer; components that update them get the
// struct by reference. Events and Queued are incremented on the radio
// delivery goroutine, everything else on the dispatch goroutine, so all
// fields are atomics.
type Stats struct {
	Events     atomic.Uint64 // frames delivered by the radio
	Queued     atomic.Uint64 // frames accepted into the capture ring
	Processed  atomic.Uint64 // frames drained by the dispatch loop
	Matched    atomic.Uint64 // broadcast packets decoded
	Malformed  atomic.Uint64 // vendor elements that failed to decode
	Suppressed atomic.Uint64 // observations suppressed by dedup
	Lines      atomic.Uint64 // change events emitted
}

// PeerSummary is one confirmed hub in the teardown report.
type PeerSummary struct {
	Tag  byte   `json:"tag"`
	Addr string `json:"address"`
	Name string `json:"name,omitempty"`
}

// Summary is the record handed to the presentation layer at process
// teardown.
type Summary struct {
	Elapsed    time.Duration `json:"elapsed"`
	Events     uint64        `json:"events_received"`
	Matched    uint64        `json:"broadcast_packets"`
	Processed  uint64        `json:"packets_processed"`
	Suppressed uint64        `json:"suppressed_by_dedup"`
	Lines      uint64        `json:"lines_emitted"`
	Drops      uint64        `json:"queue_drops"`
	Peers      []PeerSummary `json:"hubs_seen"`
}
