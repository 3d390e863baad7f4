package sqlite

import (
	"context"
	"fmt"
	"log/slog"
)

// migration is one forward schema change.
type migration struct {
	Version string
	Name    string
	Up      []string
}

// migrations are applied in order and recorded in walkthrough_migrations.
var migrations = []migration{
	{
		Version: "20260101120000",
		Name:    "create_sessions_table",
		Up: []string{`
			CREATE TABLE IF NOT EXISTS walkthrough_sessions (
				slot         INTEGER PRIMARY KEY CHECK (slot = 1),
				session_id   TEXT NOT NULL,
				workflow_id  INTEGER NOT NULL,
				status       TEXT NOT NULL,
				state        TEXT NOT NULL,
				data         TEXT NOT NULL,
				expires_at   TEXT,
				updated_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
			)`,
		},
	},
	{
		Version: "20260101120001",
		Name:    "create_journal_table",
		Up: []string{`
			CREATE TABLE IF NOT EXISTS walkthrough_journal (
				seq          INTEGER PRIMARY KEY AUTOINCREMENT,
				id           TEXT NOT NULL UNIQUE,
				session_id   TEXT NOT NULL DEFAULT '',
				workflow_id  INTEGER NOT NULL DEFAULT 0,
				tab_id       INTEGER NOT NULL DEFAULT 0,
				step_index   INTEGER NOT NULL DEFAULT 0,
				kind         TEXT NOT NULL,
				message      TEXT NOT NULL DEFAULT '',
				data         TEXT,
				created_at   TEXT NOT NULL
			)`, `
			CREATE INDEX IF NOT EXISTS idx_walkthrough_journal_session
				ON walkthrough_journal (session_id, seq DESC)`,
		},
	},
}

// Migrate applies every pending migration.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS walkthrough_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`); err != nil {
		return fmt.Errorf("walkthrough/sqlite: create migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM walkthrough_migrations WHERE version = ?`, m.Version,
		).Scan(&applied); err != nil {
			return fmt.Errorf("walkthrough/sqlite: check migration %s: %w", m.Name, err)
		}
		if applied > 0 {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("walkthrough/sqlite: begin migration %s: %w", m.Name, err)
		}
		for _, stmt := range m.Up {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("walkthrough/sqlite: migration %s: %w", m.Name, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO walkthrough_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("walkthrough/sqlite: record migration %s: %w", m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("walkthrough/sqlite: commit migration %s: %w", m.Name, err)
		}

		s.logger.Info("applied migration", slog.String("name", m.Name), slog.String("version", m.Version))
	}
	return nil
}
