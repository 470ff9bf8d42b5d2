// Package history persists per-session query logs. A session is an
// opaque key chosen by the caller; entries under it keep submission
// order. Two stores implement the same interface, a SQLite file for
// the CLI and an in-memory map for tests and --no-history runs.
package history

import (
	"context"
	"time"

	"github.com/tabiq-dev/tabiq/internal/engine"
)

// Entry is one recorded query outcome
type Entry struct {
	QueryID     string    `json:"query_id"`
	Session     string    `json:"session"`
	Query       string    `json:"query"`
	Intent      string    `json:"intent,omitempty"`
	Success     bool      `json:"success"`
	Rows        int       `json:"rows"`
	Program     string    `json:"program,omitempty"`
	Explanation string    `json:"explanation,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session is a session key with its entries in submission order
type Session struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Entries []Entry   `json:"entries"`
}

// Info summarizes one session for listing
type Info struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Queries int       `json:"queries"`
	Last    time.Time `json:"last"`
}

// Store persists query logs keyed by session.
type Store interface {
	// Put appends an entry to e.Session, creating the session on
	// first use.
	Put(ctx context.Context, e Entry) error

	// Get returns a session with its entries in submission order.
	Get(ctx context.Context, session string) (*Session, error)

	// Delete removes a session and everything recorded under it.
	Delete(ctx context.Context, session string) error

	// List returns summaries of all sessions, newest first.
	List(ctx context.Context) ([]Info, error)

	Close() error
}

// FromResponse builds the log entry for one finished query.
func FromResponse(session string, resp *engine.Response) Entry {
	e := Entry{
		QueryID:     resp.ID,
		Session:     session,
		Query:       resp.Query,
		Intent:      string(resp.Intent),
		Success:     resp.Success,
		Explanation: resp.Explanation,
		Program:     resp.Program,
		CreatedAt:   time.Now(),
	}

	if resp.Result != nil {
		e.Rows = resp.Result.TotalRows
	}

	if resp.Error != nil {
		e.Error = resp.Error.Message
	}

	return e
}
