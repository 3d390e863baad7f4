package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/walkthrough/id"
)

// DefaultLimit caps listings that do not set one.
const DefaultLimit = 100

// Recorder appends execution log entries to a Store. A failing store never
// fails the caller: entries are analytics, not state.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a recorder backed by the given store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Record stamps and persists e. It returns the stored entry.
func (r *Recorder) Record(ctx context.Context, e Entry) *Entry {
	if e.ID.IsNil() {
		e.ID = id.NewLogID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = "log"
	}
	if err := r.store.AppendLog(ctx, &e); err != nil {
		r.logger.Warn("journal append failed",
			slog.String("kind", e.Kind),
			slog.String("session_id", e.SessionID),
			slog.String("error", err.Error()),
		)
	}
	return &e
}

// Recent lists entries, newest first.
func (r *Recorder) Recent(ctx context.Context, f Filter) ([]*Entry, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	return r.store.ListLogs(ctx, f)
}

// Store returns the underlying journal store.
func (r *Recorder) Store() Store { return r.store }
