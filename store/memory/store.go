package memory

import (
	"context"
	"slices"
	"sync"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/journal"
	"github.com/xraph/walkthrough/session"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle in tests), so we verify each subsystem.
var (
	_ session.Store = (*Store)(nil)
	_ journal.Store = (*Store)(nil)
)

// DefaultJournalCap is the number of journal entries kept.
const DefaultJournalCap = 10000

// Option configures the Store.
type Option func(*Store)

// WithJournalCap bounds the journal. Oldest entries are dropped first; a
// cap of zero or less keeps everything.
func WithJournalCap(n int) Option {
	return func(m *Store) { m.journalCap = n }
}

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	session    *session.Session
	logs       []*journal.Entry
	journalCap int
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	m := &Store{journalCap: DefaultJournalCap}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Session Store
// ──────────────────────────────────────────────────

// LoadSession returns a copy of the stored session.
func (m *Store) LoadSession(_ context.Context) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil, walkthrough.ErrSessionNotFound
	}
	return m.session.Clone(), nil
}

// SaveSession stores a copy of s, replacing any previous record.
func (m *Store) SaveSession(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = s.Clone()
	return nil
}

// DeleteSession erases the session record.
func (m *Store) DeleteSession(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = nil
	return nil
}

// ──────────────────────────────────────────────────
// Journal Store
// ──────────────────────────────────────────────────

// AppendLog persists a new journal entry, dropping the oldest ones past
// the cap.
func (m *Store) AppendLog(_ context.Context, e *journal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.logs = append(m.logs, &cp)
	if over := len(m.logs) - m.journalCap; m.journalCap > 0 && over > 0 {
		m.logs = slices.Delete(m.logs, 0, over)
	}
	return nil
}

// ListLogs returns matching entries, newest first.
func (m *Store) ListLogs(_ context.Context, f journal.Filter) ([]*journal.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*journal.Entry
	for i := len(m.logs) - 1; i >= 0; i-- {
		e := m.logs[i]
		if f.SessionID != "" && e.SessionID != f.SessionID {
			continue
		}
		cp := *e
		result = append(result, &cp)
		if f.Limit > 0 && len(result) >= f.Limit {
			break
		}
	}
	return result, nil
}
