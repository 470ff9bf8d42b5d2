// Package dataset loads tabular files (csv, tsv, json, ndjson, parquet)
// into in-memory tables. Loading goes through DuckDB when the driver is
// available and falls back to built-in readers for csv and json; loaded
// tables are cached by path and modification time.
package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tabiq-dev/tabiq/internal/config"
	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/logging"
	"github.com/tabiq-dev/tabiq/internal/table"
)

// Store loads and caches tables
type Store struct {
	duck  *DuckDBLoader
	cache *TableCache
}

// NewStore builds a store with the configured cache budget. A missing or
// non-functional DuckDB driver downgrades to the built-in readers rather
// than failing.
func NewStore(cfg config.CacheConfig) *Store {
	duck, err := NewDuckDBLoader()
	if err != nil {
		logging.Warnf("duckdb engine unavailable, using built-in readers: %v", err)
	}

	return &Store{
		duck:  duck,
		cache: NewTableCache(cfg.MaxEntryMB, cfg.MaxTotalMB),
	}
}

// Close releases the underlying database handle
func (s *Store) Close() error {
	if s.duck != nil {
		return s.duck.Close()
	}

	return nil
}

// Cache exposes the table cache for stats and clearing
func (s *Store) Cache() *TableCache {
	return s.cache
}

// Load returns the table for a file, from cache when the file has not
// changed since it was loaded.
func (s *Store) Load(ctx context.Context, path string) (*table.Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeStorage, "cannot read %s", path).
			WithStage(errors.StageLoading)
	}

	if t, ok := s.cache.Get(path, info.ModTime()); ok {
		logging.Debugf("cache hit for %s", path)
		return t, nil
	}

	t, err := s.loadFile(ctx, path)
	if err != nil {
		if _, ok := errors.AsError(err); ok {
			return nil, err
		}

		return nil, errors.Wrapf(err, errors.ErrTypeStorage, "failed to load %s", path).
			WithStage(errors.StageLoading)
	}

	s.cache.Put(path, info.ModTime(), t)
	logging.Debugf("loaded %s: %d rows, %d columns", path, t.NumRows(), t.NumCols())

	return t, nil
}

func (s *Store) loadFile(ctx context.Context, path string) (*table.Table, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".tsv":
		if s.duck != nil {
			t, err := s.duck.Load(ctx, path)
			if err == nil {
				return t, nil
			}

			logging.Warnf("duckdb failed on %s, using built-in reader: %v", path, err)
		}

		return LoadCSVFile(path)
	case ".json", ".ndjson":
		if s.duck != nil {
			t, err := s.duck.Load(ctx, path)
			if err == nil {
				return t, nil
			}

			logging.Warnf("duckdb failed on %s, using built-in reader: %v", path, err)
		}

		return LoadJSONFile(path)
	case ".parquet":
		if s.duck == nil {
			return nil, errors.New(errors.ErrTypeStorage,
				"parquet files need the duckdb engine, which is unavailable").
				WithStage(errors.StageLoading)
		}

		return s.duck.Load(ctx, path)
	default:
		return nil, errors.Newf(errors.ErrTypeStorage, "unsupported file type %q", ext).
			WithStage(errors.StageLoading).
			WithSuggestion("supported types: csv, tsv, json, ndjson, parquet")
	}
}

// LoadAll loads several files concurrently, returning named tables in
// argument order. Names derive from file stems and are de-duplicated
// positionally.
func (s *Store) LoadAll(ctx context.Context, paths []string) ([]table.Named, error) {
	names := make([]string, len(paths))
	used := make(map[string]int, len(paths))

	for i, path := range paths {
		name := TableName(path)

		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}

		names[i] = name
	}

	tables := make([]*table.Table, len(paths))

	g, gctx := errgroup.WithContext(ctx)

	for i, path := range paths {
		g.Go(func() error {
			t, err := s.Load(gctx, path)
			if err != nil {
				return err
			}

			tables[i] = t

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	named := make([]table.Named, len(paths))
	for i := range paths {
		named[i] = table.Named{Name: names[i], Table: tables[i]}
	}

	return named, nil
}

// TableName derives a binding name from a file path: the lower-cased
// stem with runs of other characters collapsed to underscores.
func TableName(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var b strings.Builder

	lastUnderscore := false

	for _, r := range strings.ToLower(stem) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)

			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
			}

			lastUnderscore = true
		}
	}

	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "data"
	}

	if name[0] >= '0' && name[0] <= '9' {
		name = "t_" + name
	}

	return name
}
