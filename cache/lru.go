package cache

import (
	"fmt"
	"sync"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/utils"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultCapacity is the number of tracks kept when no capacity is configured
	DefaultCapacity = 20

	keyPrefix    = "lyrics:"
	keySeparator = "\x1f"
)

// Key builds the cache key for a track identity. Artist and name are normalized
// so that cosmetic differences (case, spacing, Unicode composition) share a slot.
func Key(artist, name string) string {
	return keyPrefix + utils.NormalizeText(artist) + keySeparator + utils.NormalizeText(name)
}

// Entry is a snapshot of one cached slot, most recently used first
type Entry struct {
	Key      string `json:"key"`
	Negative bool   `json:"negative"`
	Provider string `json:"provider,omitempty"`
	Lines    int    `json:"lines"`
}

// LyricsCache is a bounded LRU of resolved lyrics. A nil value is a negative
// entry: every provider was asked and at least one confirmed it has nothing.
//
// The mutex is held only for the map operation itself, never across provider I/O.
type LyricsCache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, *lyrics.Lyrics]
	capacity int
	evicted  []string
}

// New creates a cache holding at most capacity entries
func New(capacity int) (*LyricsCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}

	c := &LyricsCache{capacity: capacity}
	lru, err := simplelru.NewLRU[string, *lyrics.Lyrics](capacity, func(key string, _ *lyrics.Lyrics) {
		c.evicted = append(c.evicted, key)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU: %w", err)
	}
	c.lru = lru

	log.Infof("%s In-memory lyrics cache ready (capacity: %d)", logcolors.LogCacheInit, capacity)
	return c, nil
}

// Get returns the entry for key and marks it most recently used. found is false on
// a miss; a hit with a nil value is a negative entry.
func (c *LyricsCache) Get(key string) (value *lyrics.Lyrics, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Peek is Get without touching recency
func (c *LyricsCache) Peek(key string) (value *lyrics.Lyrics, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Peek(key)
}

// Put inserts or overwrites key, evicting the least recently used entry when full
func (c *LyricsCache) Put(key string, value *lyrics.Lyrics) {
	c.mu.Lock()
	c.lru.Add(key, value)
	evicted := c.evicted
	c.evicted = nil
	c.mu.Unlock()

	for _, k := range evicted {
		log.Debugf("%s Evicted %s", logcolors.LogCacheEvict, k)
	}
}

// Remove deletes key, reporting whether it was present
func (c *LyricsCache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := c.lru.Remove(key)
	c.evicted = nil
	return removed
}

// Purge empties the cache and returns how many entries were dropped
func (c *LyricsCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.lru.Len()
	c.lru.Purge()
	c.evicted = nil
	return n
}

// Len returns the number of entries
func (c *LyricsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Capacity returns the maximum number of entries
func (c *LyricsCache) Capacity() int {
	return c.capacity
}

// Entries returns a snapshot of the cache contents, most recently used first.
// Recency is not affected.
func (c *LyricsCache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.lru.Keys()
	entries := make([]Entry, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		value, _ := c.lru.Peek(keys[i])
		entries = append(entries, Entry{
			Key:      keys[i],
			Negative: value == nil,
			Provider: providerOf(value),
			Lines:    value.Len(),
		})
	}
	return entries
}

func providerOf(l *lyrics.Lyrics) string {
	if l == nil {
		return ""
	}
	return l.Provider
}
