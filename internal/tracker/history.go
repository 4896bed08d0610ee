// Package tracker keeps bounded per-address memory for the scoring task:
// threat history, first-contact detection and beacon timing.
package tracker

import (
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// DigestRing is the number of recent payload digests kept per address.
const DigestRing = 16

// HistoryConfig bounds the per-address threat history.
type HistoryConfig struct {
	Capacity          int
	TTL               time.Duration
	ExpectedSources   uint
	FalsePositiveRate float64
	Clock             func() time.Time
}

// DefaultHistoryConfig returns sensible defaults.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Capacity:          4096,
		TTL:               10 * time.Minute,
		ExpectedSources:   100000,
		FalsePositiveRate: 0.01,
		Clock:             time.Now,
	}
}

// HistoryEntry is the accumulated record for one source address.
type HistoryEntry struct {
	Mass      int
	FirstSeen time.Time
	LastSeen  time.Time
	Repeats   int
	digests   [DigestRing]uint64
	filled    int
	next      int
}

// Digests returns the retained digests, oldest first.
func (e HistoryEntry) Digests() []uint64 {
	out := make([]uint64, 0, e.filled)
	start := (e.next - e.filled + DigestRing) % DigestRing
	for i := 0; i < e.filled; i++ {
		out = append(out, e.digests[(start+i)%DigestRing])
	}
	return out
}

func (e *HistoryEntry) push(d uint64) {
	for i := 0; i < e.filled; i++ {
		if e.digests[i] == d {
			e.Repeats++
			break
		}
	}
	e.digests[e.next] = d
	e.next = (e.next + 1) % DigestRing
	if e.filled < DigestRing {
		e.filled++
	}
}

// History records intrusion mass per source address.
type History struct {
	cfg        HistoryConfig
	entries    *Cache[HistoryEntry]
	seenFilter *bloom.BloomFilter
	inserted   uint
	rebuilds   uint64
}

// NewHistory creates a bounded history.
func NewHistory(cfg HistoryConfig) *History {
	def := DefaultHistoryConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.ExpectedSources == 0 {
		cfg.ExpectedSources = def.ExpectedSources
	}
	if cfg.FalsePositiveRate <= 0 || cfg.FalsePositiveRate >= 1 {
		cfg.FalsePositiveRate = def.FalsePositiveRate
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}

	return &History{
		cfg:        cfg,
		entries:    NewCache[HistoryEntry](cfg.Capacity, cfg.TTL, cfg.Clock),
		seenFilter: bloom.NewWithEstimates(cfg.ExpectedSources, cfg.FalsePositiveRate),
	}
}

// Record adds one datagram from addr. novel is true when the address has not
// been seen since the first-contact filter was last rebuilt.
func (h *History) Record(addr string, digest uint64) (HistoryEntry, bool) {
	now := h.cfg.Clock()
	novel := h.markSeen(addr)

	entry, ok := h.entries.Get(addr)
	if !ok {
		entry = HistoryEntry{FirstSeen: now}
	}
	entry.Mass++
	entry.LastSeen = now
	entry.push(digest)
	h.entries.Put(addr, entry)

	return entry, novel
}

// Purge drops the entry for addr.
func (h *History) Purge(addr string) bool {
	return h.entries.Remove(addr)
}

// Lookup returns the live entry for addr.
func (h *History) Lookup(addr string) (HistoryEntry, bool) {
	return h.entries.Get(addr)
}

// Len returns the number of tracked addresses.
func (h *History) Len() int { return h.entries.Len() }

// Rebuilds counts first-contact filter resets.
func (h *History) Rebuilds() uint64 { return h.rebuilds }

// Metrics exposes the underlying cache counters.
func (h *History) Metrics() CacheMetrics { return h.entries.GetMetrics() }

// Sweep drops expired entries.
func (h *History) Sweep() int { return h.entries.CleanupExpired() }

func (h *History) markSeen(addr string) bool {
	if h.seenFilter.TestString(addr) {
		return false
	}
	if h.inserted >= h.cfg.ExpectedSources {
		h.seenFilter = bloom.NewWithEstimates(h.cfg.ExpectedSources, h.cfg.FalsePositiveRate)
		h.inserted = 0
		h.rebuilds++
	}
	h.seenFilter.AddString(addr)
	h.inserted++
	return true
}
