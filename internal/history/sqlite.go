package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/tabiq-dev/tabiq/internal/errors"
)

// SQLiteStore persists sessions in a SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates the history database and applies any
// pending migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to create history directory")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to open history database")
	}

	// The store is an append-mostly log; a single connection keeps
	// writers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to ping history database")
	}

	if err := NewMigrationManager(db).MigrateUp(context.Background()); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to migrate history schema")
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Put appends an entry, creating its session row on first use
func (s *SQLiteStore) Put(ctx context.Context, e Entry) error {
	if e.Session == "" {
		return errors.New(errors.ErrTypeValidation, "session id is empty")
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (id, created_at) VALUES (?, ?)",
		e.Session, e.CreatedAt.UnixNano())
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to create session")
	}

	insertSQL := `
	INSERT INTO entries (
		session_id, query_id, query, intent, success, row_count,
		program, explanation, error, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, insertSQL,
		e.Session, e.QueryID, e.Query, e.Intent, e.Success, e.Rows,
		e.Program, e.Explanation, e.Error, e.CreatedAt.UnixNano())
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to record query")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to commit entry")
	}

	return nil
}

// Get returns a session with its entries in submission order
func (s *SQLiteStore) Get(ctx context.Context, session string) (*Session, error) {
	var created int64

	err := s.db.QueryRowContext(ctx,
		"SELECT created_at FROM sessions WHERE id = ?", session).Scan(&created)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrTypeNotFound, "session not found: %s", session)
	}

	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to load session")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT query_id, query, intent, success, row_count, program, explanation, error, created_at
		FROM entries
		WHERE session_id = ?
		ORDER BY seq`,
		session)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to load entries")
	}

	defer rows.Close()

	sess := &Session{ID: session, Created: time.Unix(0, created)}

	for rows.Next() {
		var (
			e  Entry
			ts int64
		)

		err := rows.Scan(&e.QueryID, &e.Query, &e.Intent, &e.Success,
			&e.Rows, &e.Program, &e.Explanation, &e.Error, &ts)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to scan entry")
		}

		e.Session = session
		e.CreatedAt = time.Unix(0, ts)
		sess.Entries = append(sess.Entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to read entries")
	}

	return sess, nil
}

// Delete removes a session and its entries
func (s *SQLiteStore) Delete(ctx context.Context, session string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE session_id = ?", session); err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to delete entries")
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", session)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to delete session")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to check delete result")
	}

	if affected == 0 {
		return errors.Newf(errors.ErrTypeNotFound, "session not found: %s", session)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to commit delete")
	}

	return nil
}

// List returns session summaries, newest first
func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.created_at, COUNT(e.seq), COALESCE(MAX(e.created_at), s.created_at)
		FROM sessions s
		LEFT JOIN entries e ON e.session_id = s.id
		GROUP BY s.id, s.created_at
		ORDER BY s.created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to list sessions")
	}

	defer rows.Close()

	var infos []Info

	for rows.Next() {
		var (
			info          Info
			created, last int64
		)

		if err := rows.Scan(&info.ID, &created, &info.Queries, &last); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to scan session")
		}

		info.Created = time.Unix(0, created)
		info.Last = time.Unix(0, last)
		infos = append(infos, info)
	}

	return infos, rows.Err()
}

// Close releases the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nowNanos() int64 {
	return time.Now().UnixNano()
}
