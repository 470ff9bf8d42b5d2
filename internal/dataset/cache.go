package dataset

import (
	"sync"
	"time"

	"github.com/tabiq-dev/tabiq/internal/logging"
	"github.com/tabiq-dev/tabiq/internal/monitor"
	"github.com/tabiq-dev/tabiq/internal/table"
)

// Stats reports cache effectiveness
type Stats struct {
	Entries    int     `json:"entries"`
	TotalBytes int64   `json:"total_bytes"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

type cacheEntry struct {
	tbl      *table.Table
	modTime  time.Time
	size     int64
	lastUsed time.Time
}

// TableCache keeps loaded tables in memory, keyed by path. An entry is
// valid only for the modification time it was stored with; tables above
// the per-entry budget are not admitted, and the least recently used
// entries are evicted to stay under the total budget.
type TableCache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	total    int64
	maxEntry int64
	maxTotal int64
	hits     int64
	misses   int64
}

// NewTableCache builds a cache with megabyte budgets. A zero or negative
// total disables caching.
func NewTableCache(maxEntryMB, maxTotalMB int) *TableCache {
	return &TableCache{
		entries:  make(map[string]*cacheEntry),
		maxEntry: int64(maxEntryMB) * 1024 * 1024,
		maxTotal: int64(maxTotalMB) * 1024 * 1024,
	}
}

// Get returns the cached table for a path if it was stored for the same
// modification time. A stale entry is dropped and counts as a miss.
func (c *TableCache) Get(path string, modTime time.Time) (*table.Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok {
		c.misses++
		return nil, false
	}

	if !entry.modTime.Equal(modTime) {
		c.removeLocked(path)
		c.misses++

		return nil, false
	}

	entry.lastUsed = time.Now()
	c.hits++

	return entry.tbl, true
}

// Put stores a table for a path and modification time. It reports
// whether the table was admitted.
func (c *TableCache) Put(path string, modTime time.Time, t *table.Table) bool {
	if c.maxTotal <= 0 {
		return false
	}

	size := t.MemSize()
	if size > c.maxEntry {
		logging.Debugf("table %s (%d bytes) exceeds the cache entry budget", path, size)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(path)

	for c.total+size > c.maxTotal && len(c.entries) > 0 {
		c.evictOldestLocked()
	}

	c.entries[path] = &cacheEntry{
		tbl:      t,
		modTime:  modTime,
		size:     size,
		lastUsed: time.Now(),
	}
	c.total += size

	if snap := monitor.Read(); snap.High() {
		logging.Warnf("memory pressure %.2f with %d bytes cached", snap.Pressure(), c.total)
	}

	return true
}

// Invalidate drops one path from the cache
func (c *TableCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(path)
}

// Clear drops every entry
func (c *TableCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.total = 0
}

// GetStats returns a snapshot of cache counters
func (c *TableCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Entries:    len(c.entries),
		TotalBytes: c.total,
		Hits:       c.hits,
		Misses:     c.misses,
	}

	if lookups := c.hits + c.misses; lookups > 0 {
		stats.HitRate = float64(c.hits) / float64(lookups)
	}

	return stats
}

func (c *TableCache) removeLocked(path string) {
	if entry, ok := c.entries[path]; ok {
		c.total -= entry.size

		delete(c.entries, path)
	}
}

func (c *TableCache) evictOldestLocked() {
	var (
		oldestPath string
		oldestTime time.Time
	)

	for path, entry := range c.entries {
		if oldestPath == "" || entry.lastUsed.Before(oldestTime) {
			oldestPath = path
			oldestTime = entry.lastUsed
		}
	}

	if oldestPath != "" {
		logging.Debugf("evicting %s from the table cache", oldestPath)
		c.removeLocked(oldestPath)
	}
}
