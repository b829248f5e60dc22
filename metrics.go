package arena

import (
	"sync/atomic"
)

// Metrics records server counters for monitoring.
// All methods are safe for concurrent use.
type Metrics struct {
	TickCount         atomic.Int64
	TotalTickNs       atomic.Int64
	Connects          atomic.Int64
	Disconnects       atomic.Int64
	JoinsAccepted     atomic.Int64
	JoinsDropped      atomic.Int64
	CharactersSpawned atomic.Int64
	SpawnsExhausted   atomic.Int64
	InboundDiscarded  atomic.Int64
	SnapshotsDropped  atomic.Int64
}

// AddTick records one tick taking ns nanoseconds.
func (m *Metrics) AddTick(ns int64) {
	m.TickCount.Add(1)
	m.TotalTickNs.Add(ns)
}

// Snapshot returns a read-only copy suitable for JSON output.
func (m *Metrics) Snapshot() map[string]any {
	tick := m.TickCount.Load()
	total := m.TotalTickNs.Load()
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":         tick,
		"avg_tick_ms":        avgMs,
		"connects":           m.Connects.Load(),
		"disconnects":        m.Disconnects.Load(),
		"joins_accepted":     m.JoinsAccepted.Load(),
		"joins_dropped":      m.JoinsDropped.Load(),
		"characters_spawned": m.CharactersSpawned.Load(),
		"spawns_exhausted":   m.SpawnsExhausted.Load(),
		"inbound_discarded":  m.InboundDiscarded.Load(),
		"snapshots_dropped":  m.SnapshotsDropped.Load(),
	}
}
