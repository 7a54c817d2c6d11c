package discord

import (
	"sync"
	"time"
)

const DefaultClickTTL = 2 * time.Second

// Debouncer drops repeated clicks on the same key within a TTL. Discord
// resends interactions and users double click; both would otherwise reach
// the coordinator twice.
type Debouncer struct {
	ttl    time.Duration
	now    func() time.Time
	recent sync.Map // key -> time.Time
}

func NewDebouncer(ttl time.Duration) *Debouncer {
	if ttl <= 0 {
		ttl = DefaultClickTTL
	}
	return &Debouncer{ttl: ttl, now: time.Now}
}

// Allow is true the first time key is seen within the TTL.
func (d *Debouncer) Allow(key string) bool {
	now := d.now()
	if v, ok := d.recent.Load(key); ok {
		if now.Sub(v.(time.Time)) < d.ttl {
			return false
		}
	}
	d.recent.Store(key, now)
	return true
}

// Prune forgets keys older than the TTL.
func (d *Debouncer) Prune() int {
	now := d.now()
	n := 0
	d.recent.Range(func(k, v any) bool {
		if now.Sub(v.(time.Time)) >= d.ttl {
			d.recent.Delete(k)
			n++
		}
		return true
	})
	return n
}

// ClickKey scopes a debounce key to one user and one component.
func ClickKey(userID, customID string) string { return userID + "#" + customID }
