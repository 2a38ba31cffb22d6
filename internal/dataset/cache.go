package dataset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Entry is one cached, parsed dataset. ID is derived from the uploaded
// bytes, so re-uploading the same file resolves to the same entry.
type Entry struct {
	ID       string
	Table    Table
	Stats    LoadStats
	LoadedAt time.Time

	lastUsed time.Time
}

// Cache holds parsed datasets keyed by content identity. It is the only
// cross-invocation state in the system; every report recomputes from the
// cached table. Eviction is least-recently-used past the configured cap,
// and Invalidate removes an entry explicitly.
type Cache struct {
	mu      sync.Mutex
	max     int
	entries map[string]*Entry
	now     func() time.Time
}

func NewCache(maxDatasets int) *Cache {
	if maxDatasets < 1 {
		maxDatasets = 1
	}
	return &Cache{
		max:     maxDatasets,
		entries: map[string]*Entry{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ContentID returns the cache key for raw upload bytes.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// Load parses the upload and stores it, or returns the already-cached entry
// when the same bytes were uploaded before. The second return reports a
// cache hit.
func (c *Cache) Load(data []byte) (*Entry, bool, error) {
	id := ContentID(data)

	c.mu.Lock()
	if entry, ok := c.entries[id]; ok {
		entry.lastUsed = c.now()
		c.mu.Unlock()
		return entry, true, nil
	}
	c.mu.Unlock()

	table, stats, err := ParseCSV(bytes.NewReader(data))
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[id]; ok {
		entry.lastUsed = c.now()
		return entry, true, nil
	}
	entry := &Entry{
		ID:       id,
		Table:    table,
		Stats:    stats,
		LoadedAt: c.now(),
		lastUsed: c.now(),
	}
	c.entries[id] = entry
	c.evictLocked()
	return entry, false, nil
}

// Get returns the cached dataset and marks it used.
func (c *Cache) Get(id string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	entry.lastUsed = c.now()
	return entry, true
}

// Invalidate drops a dataset. It reports whether the id was present.
func (c *Cache) Invalidate(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; !ok {
		return false
	}
	delete(c.entries, id)
	return true
}

// Len reports how many datasets are resident.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictLocked() {
	for len(c.entries) > c.max {
		var oldest string
		var oldestUsed time.Time
		for id, entry := range c.entries {
			if oldest == "" || entry.lastUsed.Before(oldestUsed) {
				oldest = id
				oldestUsed = entry.lastUsed
			}
		}
		delete(c.entries, oldest)
	}
}
