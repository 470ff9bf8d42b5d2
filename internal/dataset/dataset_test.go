package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabiq-dev/tabiq/internal/config"
	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/table"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

// newFallbackStore builds a store that always uses the built-in readers,
// so inference assertions do not depend on the DuckDB driver.
func newFallbackStore() *Store {
	return &Store{cache: NewTableCache(50, 256)}
}

func TestTableName(t *testing.T) {
	cases := map[string]string{
		"sales.csv":              "sales",
		"/tmp/Sales Data.CSV":    "sales_data",
		"2024-q1.csv":            "t_2024_q1",
		"---.csv":                "data",
		"orders.json":            "orders",
		"my_file.v2.csv":         "my_file_v2",
		"/data/dir.d/trades.tsv": "trades",
	}

	for path, want := range cases {
		assert.Equal(t, want, TableName(path), "path %s", path)
	}
}

func TestLoadCSVInfersTypes(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sales.csv",
		"region,sales,when,note\n"+
			"west,100,2024-01-05,ok\n"+
			"east,200,2024-02-10,fine\n"+
			"west,,2024-03-15,meh\n"+
			"south,400,,good\n"+
			"east,250,2024-05-20,bad\n"+
			"west,175,2024-06-25,dull\n")

	tbl, err := LoadCSVFile(path)
	require.NoError(t, err)

	assert.Equal(t, 6, tbl.NumRows())
	assert.Equal(t, []string{"region", "sales", "when", "note"}, tbl.ColumnNames())

	assert.Equal(t, table.TypeCategorical, tbl.ColumnType("region"))
	assert.Equal(t, table.TypeNumeric, tbl.ColumnType("sales"))
	assert.Equal(t, table.TypeTemporal, tbl.ColumnType("when"))
	assert.Equal(t, table.TypeText, tbl.ColumnType("note"))

	assert.Equal(t, 100.0, tbl.Cell(0, 1))
	assert.Nil(t, tbl.Cell(2, 1))
	assert.Nil(t, tbl.Cell(3, 2))

	when, ok := tbl.Cell(0, 2).(time.Time)
	require.True(t, ok)
	assert.Equal(t, time.January, when.Month())
}

func TestLoadTSV(t *testing.T) {
	path := writeFile(t, t.TempDir(), "points.tsv",
		"name\tscore\nalpha\t1\nbeta\t2\n")

	tbl, err := LoadCSVFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, table.TypeNumeric, tbl.ColumnType("score"))
	assert.Equal(t, 2.0, tbl.Cell(1, 1))
}

func TestLoadCSVRaggedRowsError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.csv", "a,b\n1,2\n3\n")

	_, err := LoadCSVFile(path)
	assert.Error(t, err)
}

func TestLoadCSVEmptyFileError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.csv", "")

	_, err := LoadCSVFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}

func TestLoadCSVDuplicateHeaders(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dup.csv", "id,value,value,\n1,2,3,4\n")

	tbl, err := LoadCSVFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "value", "value_2", "column_4"}, tbl.ColumnNames())
}

func TestLoadJSONArray(t *testing.T) {
	path := writeFile(t, t.TempDir(), "users.json", `[
  {"name": "alice", "amount": 10, "active": true, "joined": "2024-01-05"},
  {"name": "bob", "amount": 20.5, "active": false, "joined": "2024-02-10"},
  {"name": "carol", "amount": null, "active": true, "joined": null, "extra": 1}
]`)

	tbl, err := LoadJSONFile(path)
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.NumRows())
	assert.Equal(t, []string{"name", "amount", "active", "joined", "extra"}, tbl.ColumnNames())

	assert.Equal(t, table.TypeText, tbl.ColumnType("name"))
	assert.Equal(t, table.TypeNumeric, tbl.ColumnType("amount"))
	assert.Equal(t, table.TypeBoolean, tbl.ColumnType("active"))
	assert.Equal(t, table.TypeTemporal, tbl.ColumnType("joined"))
	assert.Equal(t, table.TypeNumeric, tbl.ColumnType("extra"))

	assert.Equal(t, 20.5, tbl.Cell(1, 1))
	assert.Nil(t, tbl.Cell(2, 1))
	assert.Nil(t, tbl.Cell(0, 4))
	assert.Equal(t, 1.0, tbl.Cell(2, 4))
}

func TestLoadNDJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "events.ndjson",
		`{"kind": "click", "count": 3}`+"\n"+
			`{"kind": "view", "count": 7}`+"\n")

	tbl, err := LoadJSONFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, []string{"kind", "count"}, tbl.ColumnNames())
	assert.Equal(t, 7.0, tbl.Cell(1, 1))
}

func TestLoadJSONNestedValuesBecomeText(t *testing.T) {
	path := writeFile(t, t.TempDir(), "nested.json",
		`[{"id": 1, "user": {"name": "alice"}, "tags": [1, 2]}]`)

	tbl, err := LoadJSONFile(path)
	require.NoError(t, err)

	assert.Equal(t, table.TypeText, tbl.ColumnType("user"))
	assert.Equal(t, `{"name":"alice"}`, tbl.Cell(0, 1))
	assert.Equal(t, "[1,2]", tbl.Cell(0, 2))
}

func TestLoadJSONNotAnArrayError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "scalar.json", `42`)

	_, err := LoadJSONFile(path)
	assert.Error(t, err)
}

func TestStoreLoadCachesByModTime(t *testing.T) {
	store := newFallbackStore()
	path := writeFile(t, t.TempDir(), "sales.csv", "a,b\n1,2\n")

	first, err := store.Load(context.Background(), path)
	require.NoError(t, err)

	second, err := store.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Same(t, first, second)

	stats := store.Cache().GetStats()
	assert.Equal(t, int64(1), stats.Hits)
}

func TestStoreLoadReloadsChangedFile(t *testing.T) {
	store := newFallbackStore()
	path := writeFile(t, t.TempDir(), "sales.csv", "a\n1\n")

	_, err := store.Load(context.Background(), path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("a\n1\n2\n"), 0o644))

	// Force a distinct modification time so the change is visible even
	// on filesystems with coarse timestamps.
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	tbl, err := store.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.NumRows())
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := newFallbackStore()

	_, err := store.Load(context.Background(), filepath.Join(t.TempDir(), "gone.csv"))
	require.Error(t, err)

	assert.True(t, errors.IsType(err, errors.ErrTypeStorage))
	assert.Equal(t, errors.StageLoading, errors.GetStage(err))
}

func TestStoreLoadUnsupportedExtension(t *testing.T) {
	store := newFallbackStore()
	path := writeFile(t, t.TempDir(), "book.xlsx", "not a table")

	_, err := store.Load(context.Background(), path)
	require.Error(t, err)

	assert.True(t, errors.IsType(err, errors.ErrTypeStorage))
	assert.NotEmpty(t, errors.GetSuggestions(err))
}

func TestStoreParquetNeedsDuckDB(t *testing.T) {
	store := newFallbackStore()
	path := writeFile(t, t.TempDir(), "data.parquet", "PAR1")

	_, err := store.Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duckdb")
}

func TestLoadAllPreservesOrderAndDedupesNames(t *testing.T) {
	store := newFallbackStore()

	dirA := t.TempDir()
	dirB := t.TempDir()

	paths := []string{
		writeFile(t, dirA, "customers.csv", "id,name\n1,alice\n2,bob\n"),
		writeFile(t, dirA, "data.csv", "x\n1\n"),
		writeFile(t, dirB, "data.csv", "y\n2\n3\n"),
	}

	named, err := store.LoadAll(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, named, 3)

	assert.Equal(t, "customers", named[0].Name)
	assert.Equal(t, "data", named[1].Name)
	assert.Equal(t, "data_2", named[2].Name)

	assert.Equal(t, 2, named[0].Table.NumRows())
	assert.Equal(t, 1, named[1].Table.NumRows())
	assert.Equal(t, 2, named[2].Table.NumRows())
}

func TestLoadAllPropagatesFailure(t *testing.T) {
	store := newFallbackStore()
	dir := t.TempDir()

	paths := []string{
		writeFile(t, dir, "good.csv", "a\n1\n"),
		filepath.Join(dir, "missing.csv"),
	}

	_, err := store.LoadAll(context.Background(), paths)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeStorage))
}

func TestStoreDuckDBRoundTrip(t *testing.T) {
	store := NewStore(config.CacheConfig{MaxEntryMB: 50, MaxTotalMB: 256})
	defer store.Close()

	if store.duck == nil {
		t.Skip("duckdb driver unavailable")
	}

	path := writeFile(t, t.TempDir(), "trades.csv",
		"symbol,qty\nAAA,10\nBBB,20\nAAA,30\n")

	tbl, err := store.Load(context.Background(), path)
	require.NoError(t, err)

	require.Equal(t, 3, tbl.NumRows())
	require.Equal(t, 2, tbl.NumCols())

	qty, ok := tbl.ColumnByName("qty")
	require.True(t, ok)
	assert.Equal(t, table.TypeNumeric, qty.Type)

	var sum float64

	for _, v := range qty.Values {
		f, ok := v.(float64)
		require.True(t, ok)

		sum += f
	}

	assert.InDelta(t, 60.0, sum, 1e-9)
}
