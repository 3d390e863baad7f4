package journal

import "context"

// Store defines the persistence contract for journal entries.
type Store interface {
	// AppendLog persists a new entry.
	AppendLog(ctx context.Context, e *Entry) error

	// ListLogs returns the most recent entries matching f, newest first.
	ListLogs(ctx context.Context, f Filter) ([]*Entry, error)
}
