package dataset

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabiq-dev/tabiq/internal/table"
)

// textTable builds a one-cell table whose MemSize is dominated by the
// payload, so cache budgets can be exercised with round numbers.
func textTable(t *testing.T, payloadBytes int) *table.Table {
	t.Helper()

	tbl, err := table.New([]table.Column{{
		Name:   "v",
		Type:   table.TypeText,
		Values: []any{strings.Repeat("x", payloadBytes)},
	}})
	require.NoError(t, err)

	return tbl
}

func TestCacheHitMissAndStats(t *testing.T) {
	cache := NewTableCache(50, 256)
	mt := time.Now()

	tbl := textTable(t, 64)
	require.True(t, cache.Put("/data/a.csv", mt, tbl))

	got, ok := cache.Get("/data/a.csv", mt)
	require.True(t, ok)
	assert.Same(t, tbl, got)

	_, ok = cache.Get("/data/b.csv", mt)
	assert.False(t, ok)

	stats := cache.GetStats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Greater(t, stats.TotalBytes, int64(0))
}

func TestCacheStaleModTimeDropsEntry(t *testing.T) {
	cache := NewTableCache(50, 256)
	mt := time.Now()

	require.True(t, cache.Put("/data/a.csv", mt, textTable(t, 64)))

	_, ok := cache.Get("/data/a.csv", mt.Add(time.Second))
	assert.False(t, ok)

	assert.Equal(t, 0, cache.GetStats().Entries)
}

func TestCacheRejectsOversizedEntry(t *testing.T) {
	cache := NewTableCache(1, 256)

	big := textTable(t, 2*1024*1024)
	assert.False(t, cache.Put("/data/big.csv", time.Now(), big))

	assert.Equal(t, 0, cache.GetStats().Entries)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewTableCache(1, 2)
	mt := time.Now()

	entry := 800 * 1024

	require.True(t, cache.Put("/a", mt, textTable(t, entry)))
	time.Sleep(2 * time.Millisecond)

	require.True(t, cache.Put("/b", mt, textTable(t, entry)))
	time.Sleep(2 * time.Millisecond)

	// Touch /a so /b becomes the eviction candidate.
	_, ok := cache.Get("/a", mt)
	require.True(t, ok)
	time.Sleep(2 * time.Millisecond)

	require.True(t, cache.Put("/c", mt, textTable(t, entry)))

	_, ok = cache.Get("/a", mt)
	assert.True(t, ok)

	_, ok = cache.Get("/b", mt)
	assert.False(t, ok)

	_, ok = cache.Get("/c", mt)
	assert.True(t, ok)
}

func TestCachePutReplacesExisting(t *testing.T) {
	cache := NewTableCache(50, 256)
	mt := time.Now()

	require.True(t, cache.Put("/a", mt, textTable(t, 64)))
	require.True(t, cache.Put("/a", mt, textTable(t, 128)))

	assert.Equal(t, 1, cache.GetStats().Entries)
}

func TestCacheClear(t *testing.T) {
	cache := NewTableCache(50, 256)
	mt := time.Now()

	require.True(t, cache.Put("/a", mt, textTable(t, 64)))
	require.True(t, cache.Put("/b", mt, textTable(t, 64)))

	cache.Clear()

	stats := cache.GetStats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.TotalBytes)
}

func TestCacheDisabledByZeroBudget(t *testing.T) {
	cache := NewTableCache(50, 0)

	assert.False(t, cache.Put("/a", time.Now(), textTable(t, 64)))

	_, ok := cache.Get("/a", time.Now())
	assert.False(t, ok)
}
