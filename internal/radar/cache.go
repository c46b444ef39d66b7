package radar

import (
	"sync"
	"time"
)

// trackCache is the one structure shared between the listener goroutine and
// caller threads. It never exposes its map; callers get snapshots.
type trackCache struct {
	mu     sync.Mutex
	tracks map[int]Track
	ttl    time.Duration
}

func newTrackCache(ttl time.Duration) *trackCache {
	return &trackCache{
		tracks: make(map[int]Track),
		ttl:    ttl,
	}
}

// upsert replaces the slot's track. Last writer wins.
func (c *trackCache) upsert(t Track) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks[t.ID] = t
}

// snapshot removes every entry older than now minus the TTL, then returns an
// independent copy of the survivors. The copy means a caller iterating the
// result never races the listener's concurrent writes.
func (c *trackCache) snapshot(now time.Time) map[int]Track {
	cutoff := now.Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, t := range c.tracks {
		if t.Timestamp.Before(cutoff) {
			delete(c.tracks, id)
		}
	}

	out := make(map[int]Track, len(c.tracks))
	for id, t := range c.tracks {
		out[id] = t
	}
	return out
}

// clear drops all entries. Called on driver stop.
func (c *trackCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = make(map[int]Track)
}
