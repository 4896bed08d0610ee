package tracker

import "time"

// BeaconTable remembers when each address last sent a beacon.
type BeaconTable struct {
	last *Cache[time.Time]
}

// NewBeaconTable creates a bounded beacon table.
func NewBeaconTable(capacity int, ttl time.Duration, clock func() time.Time) *BeaconTable {
	return &BeaconTable{last: NewCache[time.Time](capacity, ttl, clock)}
}

// Observe stores at for addr and returns the seconds since the previous
// beacon, or 0 for the first one.
func (b *BeaconTable) Observe(addr string, at time.Time) float64 {
	var delta float64
	if prev, ok := b.last.Get(addr); ok {
		delta = at.Sub(prev).Seconds()
		if delta < 0 {
			delta = 0
		}
	}
	b.last.Put(addr, at)
	return delta
}

func (b *BeaconTable) Len() int { return b.last.Len() }
