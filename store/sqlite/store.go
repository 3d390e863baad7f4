package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // register the "sqlite" driver

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/journal"
	"github.com/xraph/walkthrough/session"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ session.Store = (*Store)(nil)
	_ journal.Store = (*Store)(nil)
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements store.Store on SQLite.
type Store struct {
	db     *sql.DB
	owned  bool
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New wraps an open database. The caller owns the db lifecycle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the database at dsn. Close releases it.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("walkthrough/sqlite: open: %w", err)
	}
	// :memory: databases exist per connection.
	db.SetMaxOpenConns(1)

	s := New(db, opts...)
	s.owned = true
	return s, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database when the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Session Store
// ──────────────────────────────────────────────────

// LoadSession returns the stored session record.
func (s *Store) LoadSession(ctx context.Context) (*session.Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM walkthrough_sessions WHERE slot = 1`,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, walkthrough.ErrSessionNotFound
		}
		return nil, fmt.Errorf("walkthrough/sqlite: load session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("walkthrough/sqlite: decode session: %w", err)
	}
	return &sess, nil
}

// SaveSession upserts the session record.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("walkthrough/sqlite: encode session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO walkthrough_sessions
			(slot, session_id, workflow_id, status, state, data, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET
			session_id  = excluded.session_id,
			workflow_id = excluded.workflow_id,
			status      = excluded.status,
			state       = excluded.state,
			data        = excluded.data,
			expires_at  = excluded.expires_at,
			updated_at  = excluded.updated_at`,
		sess.ID.String(), sess.WorkflowID, string(sess.Status), string(sess.State),
		string(data), formatTime(sess.ExpiresAt), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("walkthrough/sqlite: save session: %w", err)
	}
	return nil
}

// DeleteSession removes the session record.
func (s *Store) DeleteSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM walkthrough_sessions WHERE slot = 1`); err != nil {
		return fmt.Errorf("walkthrough/sqlite: delete session: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Journal Store
// ──────────────────────────────────────────────────

// AppendLog persists a journal entry.
func (s *Store) AppendLog(ctx context.Context, e *journal.Entry) error {
	var data any
	if len(e.Data) > 0 {
		data = string(e.Data)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO walkthrough_journal
			(id, session_id, workflow_id, tab_id, step_index, kind, message, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.SessionID, e.WorkflowID, e.TabID, e.StepIndex,
		e.Kind, e.Message, data, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("walkthrough/sqlite: append log: %w", err)
	}
	return nil
}

// ListLogs returns journal entries matching f, newest first.
func (s *Store) ListLogs(ctx context.Context, f journal.Filter) ([]*journal.Entry, error) {
	query := `
		SELECT id, session_id, workflow_id, tab_id, step_index, kind, message, data, created_at
		FROM walkthrough_journal`
	var args []any
	if f.SessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, f.SessionID)
	}
	query += ` ORDER BY seq DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("walkthrough/sqlite: list logs: %w", err)
	}
	defer rows.Close()

	var out []*journal.Entry
	for rows.Next() {
		var (
			e       journal.Entry
			data    sql.NullString
			created string
		)
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.WorkflowID, &e.TabID, &e.StepIndex,
			&e.Kind, &e.Message, &data, &created,
		); err != nil {
			return nil, fmt.Errorf("walkthrough/sqlite: scan log: %w", err)
		}
		if data.Valid && data.String != "" {
			e.Data = json.RawMessage(data.String)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("walkthrough/sqlite: parse created_at: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("walkthrough/sqlite: list logs: %w", err)
	}
	return out, nil
}

// ── helpers ──────────────────────────────────────────────────────

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}
