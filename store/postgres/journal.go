package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/walkthrough/journal"
)

// AppendLog persists a journal entry.
func (s *Store) AppendLog(ctx context.Context, e *journal.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO walkthrough_journal
			(id, session_id, workflow_id, tab_id, step_index, kind, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID.String(), e.SessionID, e.WorkflowID, e.TabID, e.StepIndex,
		e.Kind, e.Message, nullableJSON(e.Data), e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("walkthrough/postgres: append log: %w", err)
	}
	return nil
}

// ListLogs returns journal entries matching f, newest first.
func (s *Store) ListLogs(ctx context.Context, f journal.Filter) ([]*journal.Entry, error) {
	query := `
		SELECT id, session_id, workflow_id, tab_id, step_index, kind, message, data, created_at
		FROM walkthrough_journal`
	args := []any{}
	argIdx := 1

	if f.SessionID != "" {
		query += fmt.Sprintf(" WHERE session_id = $%d", argIdx)
		args = append(args, f.SessionID)
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("walkthrough/postgres: list logs: %w", err)
	}
	defer rows.Close()

	var out []*journal.Entry
	for rows.Next() {
		e, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("walkthrough/postgres: list logs: %w", err)
	}
	return out, nil
}

func scanEntry(row pgx.Row) (*journal.Entry, error) {
	var (
		e    journal.Entry
		data []byte
	)
	if err := row.Scan(
		&e.ID, &e.SessionID, &e.WorkflowID, &e.TabID, &e.StepIndex,
		&e.Kind, &e.Message, &data, &e.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("walkthrough/postgres: scan log: %w", err)
	}
	if len(data) > 0 {
		e.Data = data
	}
	return &e, nil
}
