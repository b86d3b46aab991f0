package executor

import (
	"sync"
	"time"
)

// Dedup suppresses repeat executions of the same matched pair within a
// cooldown window. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // pairID -> last attempt
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats a pair as a duplicate if it was
// attempted within ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// SetTTL changes the cooldown. Entries already recorded are judged against
// the new value.
func (d *Dedup) SetTTL(ttl time.Duration) {
	d.mu.Lock()
	d.ttl = ttl
	d.mu.Unlock()
}

// Active reports whether pairID was attempted within the cooldown without
// recording anything.
func (d *Dedup) Active(pairID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.seen[pairID]
	return ok && d.now().Sub(last) < d.ttl
}

// IsDuplicate returns true if pairID was attempted within the cooldown.
// Otherwise the attempt is recorded and false is returned.
func (d *Dedup) IsDuplicate(pairID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[pairID]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[pairID] = now
	return false
}

// Cleanup removes expired entries.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Len returns the number of tracked pairs.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
