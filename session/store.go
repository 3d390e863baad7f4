package session

import "context"

// Store persists the singleton session record.
type Store interface {
	// LoadSession returns the stored record or walkthrough.ErrSessionNotFound.
	LoadSession(ctx context.Context) (*Session, error)

	// SaveSession replaces the stored record.
	SaveSession(ctx context.Context, s *Session) error

	// DeleteSession erases the record. Deleting a missing record is not
	// an error.
	DeleteSession(ctx context.Context) error
}
