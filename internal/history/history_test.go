package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabiq-dev/tabiq/internal/engine"
	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/format"
	"github.com/tabiq-dev/tabiq/internal/lang"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func entry(session, query string, ts int64) Entry {
	return Entry{
		QueryID:     "q-" + query,
		Session:     session,
		Query:       query,
		Intent:      "filter",
		Success:     true,
		Rows:        2,
		Program:     `[{"bind":"result","from":"sales","ops":[]}]`,
		Explanation: "I filtered the data",
		CreatedAt:   time.Unix(0, ts),
	}
}

func TestPutThenGetKeepsSubmissionOrder(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			// Timestamps run backwards so ordering provably follows
			// submission, not the clock.
			require.NoError(t, store.Put(ctx, entry("s1", "one", 3000)))
			require.NoError(t, store.Put(ctx, entry("s1", "two", 2000)))
			require.NoError(t, store.Put(ctx, entry("s1", "three", 1000)))

			sess, err := store.Get(ctx, "s1")
			require.NoError(t, err)

			assert.Equal(t, "s1", sess.ID)
			require.Len(t, sess.Entries, 3)
			assert.Equal(t, "one", sess.Entries[0].Query)
			assert.Equal(t, "two", sess.Entries[1].Query)
			assert.Equal(t, "three", sess.Entries[2].Query)

			got := sess.Entries[0]
			assert.Equal(t, "q-one", got.QueryID)
			assert.Equal(t, "s1", got.Session)
			assert.Equal(t, "filter", got.Intent)
			assert.True(t, got.Success)
			assert.Equal(t, 2, got.Rows)
			assert.Contains(t, got.Program, `"bind":"result"`)
			assert.Equal(t, "I filtered the data", got.Explanation)
			assert.Empty(t, got.Error)
			assert.Equal(t, int64(3000), got.CreatedAt.UnixNano())
		})
	}
}

func TestGetUnknownSession(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "missing")
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
		})
	}
}

func TestDeleteRemovesSession(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, entry("gone", "one", 1000)))
			require.NoError(t, store.Delete(ctx, "gone"))

			_, err := store.Get(ctx, "gone")
			assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))

			err = store.Delete(ctx, "gone")
			assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
		})
	}
}

func TestListReturnsNewestSessionFirst(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, entry("older", "one", 1000)))
			require.NoError(t, store.Put(ctx, entry("older", "two", 1500)))
			require.NoError(t, store.Put(ctx, entry("newer", "three", 2000)))

			infos, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, infos, 2)

			assert.Equal(t, "newer", infos[0].ID)
			assert.Equal(t, 1, infos[0].Queries)
			assert.Equal(t, int64(2000), infos[0].Last.UnixNano())

			assert.Equal(t, "older", infos[1].ID)
			assert.Equal(t, 2, infos[1].Queries)
			assert.Equal(t, int64(1000), infos[1].Created.UnixNano())
			assert.Equal(t, int64(1500), infos[1].Last.UnixNano())
		})
	}
}

func TestPutRejectsEmptySession(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Put(context.Background(), Entry{Query: "no session"})
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
		})
	}
}

func TestSQLiteReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Put(context.Background(), entry("kept", "one", 1000)))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)

	defer second.Close()

	sess, err := second.Get(context.Background(), "kept")
	require.NoError(t, err)
	require.Len(t, sess.Entries, 1)
	assert.Equal(t, "one", sess.Entries[0].Query)
}

func TestMigrateUpTwiceAppliesOnce(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)

	defer db.Close()

	ctx := context.Background()
	m := NewMigrationManager(db)

	require.NoError(t, m.MigrateUp(ctx))
	require.NoError(t, m.MigrateUp(ctx))

	applied, err := m.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, applied)
}

func TestMigrateDownRemovesTables(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)

	defer db.Close()

	ctx := context.Background()
	m := NewMigrationManager(db)

	require.NoError(t, m.MigrateUp(ctx))
	require.NoError(t, m.MigrateDown(ctx, 0))

	var count int

	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'entries'").Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)

	applied, err := m.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestFromResponse(t *testing.T) {
	resp := &engine.Response{
		ID:          "abc-123",
		Query:       "Show me sales above 150",
		Intent:      lang.IntentFilter,
		Success:     true,
		Program:     `[{"bind":"result","from":"sales","ops":[]}]`,
		Result:      &format.Payload{TotalRows: 7},
		Explanation: "I filtered the data",
	}

	e := FromResponse("cli", resp)

	assert.Equal(t, "abc-123", e.QueryID)
	assert.Equal(t, "cli", e.Session)
	assert.Equal(t, "Show me sales above 150", e.Query)
	assert.Equal(t, "filter", e.Intent)
	assert.True(t, e.Success)
	assert.Equal(t, 7, e.Rows)
	assert.Equal(t, "I filtered the data", e.Explanation)
	assert.Empty(t, e.Error)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestFromResponseCarriesFailure(t *testing.T) {
	resp := &engine.Response{
		ID:      "def-456",
		Query:   "Join customers and orders",
		Intent:  lang.IntentJoin,
		Success: false,
		Error:   &engine.Failure{Type: "insufficient_inputs", Message: "no second table"},
	}

	e := FromResponse("cli", resp)

	assert.False(t, e.Success)
	assert.Zero(t, e.Rows)
	assert.Equal(t, "no second table", e.Error)
}
