package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/session"
)

// LoadSession returns the stored session record.
func (s *Store) LoadSession(ctx context.Context) (*session.Session, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM walkthrough_sessions WHERE slot = 1`,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, walkthrough.ErrSessionNotFound
		}
		return nil, fmt.Errorf("walkthrough/postgres: load session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("walkthrough/postgres: decode session: %w", err)
	}
	return &sess, nil
}

// SaveSession upserts the session record.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("walkthrough/postgres: encode session: %w", err)
	}

	var expires any
	if !sess.ExpiresAt.IsZero() {
		expires = sess.ExpiresAt.UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO walkthrough_sessions
			(slot, session_id, workflow_id, status, state, data, expires_at, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (slot) DO UPDATE SET
			session_id  = EXCLUDED.session_id,
			workflow_id = EXCLUDED.workflow_id,
			status      = EXCLUDED.status,
			state       = EXCLUDED.state,
			data        = EXCLUDED.data,
			expires_at  = EXCLUDED.expires_at,
			updated_at  = NOW()`,
		sess.ID.String(), sess.WorkflowID, string(sess.Status), string(sess.State), data, expires,
	)
	if err != nil {
		return fmt.Errorf("walkthrough/postgres: save session: %w", err)
	}
	return nil
}

// DeleteSession removes the session record.
func (s *Store) DeleteSession(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM walkthrough_sessions WHERE slot = 1`); err != nil {
		return fmt.Errorf("walkthrough/postgres: delete session: %w", err)
	}
	return nil
}
