package notify

import (
	"sync"
	"time"
)

// Dedup suppresses repeats of the same key within a time-to-live window. It
// is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats a key seen within ttl as a duplicate.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate reports whether key was seen within the TTL. Otherwise it
// records key and returns false. Expired entries are pruned on the way.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = now
	return false
}
