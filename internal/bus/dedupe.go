package bus

import (
	"sync"
	"time"
)

// DedupeCache remembers recently seen message IDs so webhook redeliveries
// are dropped instead of reprocessed. Entries expire after a TTL; the map
// is swept lazily on insert to stay allocation-free in steady state.
type DedupeCache struct {
	ttl     time.Duration
	maxSize int

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &DedupeCache{ttl: ttl, maxSize: maxSize, seen: make(map[string]time.Time)}
}

// Seen records id and reports whether it was already present and fresh.
func (d *DedupeCache) Seen(id string) bool {
	if id == "" {
		return false
	}
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.seen[id]; ok && now.Sub(at) < d.ttl {
		return true
	}

	if len(d.seen) >= d.maxSize {
		for k, at := range d.seen {
			if now.Sub(at) >= d.ttl {
				delete(d.seen, k)
			}
		}
		// Still full after sweeping expired entries: drop everything
		// rather than grow without bound.
		if len(d.seen) >= d.maxSize {
			d.seen = make(map[string]time.Time)
		}
	}

	d.seen[id] = now
	return false
}
