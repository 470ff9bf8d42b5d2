package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tabiq-dev/tabiq/internal/errors"
)

// MemoryStore keeps sessions in process memory. It backs tests and
// runs with the history file disabled.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Put(_ context.Context, e Entry) error {
	if e.Session == "" {
		return errors.New(errors.ErrTypeValidation, "session id is empty")
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[e.Session]
	if !ok {
		sess = &Session{ID: e.Session, Created: e.CreatedAt}
		s.sessions[e.Session] = sess
	}

	sess.Entries = append(sess.Entries, e)

	return nil
}

func (s *MemoryStore) Get(_ context.Context, session string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[session]
	if !ok {
		return nil, errors.Newf(errors.ErrTypeNotFound, "session not found: %s", session)
	}

	out := &Session{
		ID:      sess.ID,
		Created: sess.Created,
		Entries: append([]Entry(nil), sess.Entries...),
	}

	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session]; !ok {
		return errors.Newf(errors.ErrTypeNotFound, "session not found: %s", session)
	}

	delete(s.sessions, session)

	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]Info, 0, len(s.sessions))

	for _, sess := range s.sessions {
		info := Info{
			ID:      sess.ID,
			Created: sess.Created,
			Queries: len(sess.Entries),
			Last:    sess.Created,
		}

		if n := len(sess.Entries); n > 0 {
			info.Last = sess.Entries[n-1].CreatedAt
		}

		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, k int) bool {
		return infos[i].Created.After(infos[k].Created)
	})

	return infos, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
