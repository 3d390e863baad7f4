package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/journal"
	"github.com/xraph/walkthrough/session"
)

// Compile-time interface checks.
var (
	_ session.Store = (*Store)(nil)
	_ journal.Store = (*Store)(nil)
)

// DefaultJournalCap is the approximate number of journal entries kept.
const DefaultJournalCap = 10000

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithJournalCap bounds the journal stream length.
func WithJournalCap(n int64) Option {
	return func(s *Store) { s.journalCap = n }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client     goredis.Cmdable
	journalCap int64
	logger     *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, journalCap: DefaultJournalCap, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Session Store
// ──────────────────────────────────────────────────

// LoadSession returns the stored session record.
func (s *Store) LoadSession(ctx context.Context) (*session.Session, error) {
	data, err := s.client.HGet(ctx, sessionKey, "data").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, walkthrough.ErrSessionNotFound
		}
		return nil, fmt.Errorf("walkthrough/redis: load session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("walkthrough/redis: decode session: %w", err)
	}
	return &sess, nil
}

// SaveSession replaces the session hash and aligns its expiry with the
// session TTL.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("walkthrough/redis: encode session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey)
	pipe.HSet(ctx, sessionKey,
		"session_id", sess.ID.String(),
		"workflow_id", strconv.FormatInt(sess.WorkflowID, 10),
		"status", string(sess.Status),
		"state", string(sess.State),
		"data", string(data),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	if !sess.ExpiresAt.IsZero() {
		pipe.ExpireAt(ctx, sessionKey, sess.ExpiresAt)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("walkthrough/redis: save session: %w", err)
	}
	return nil
}

// DeleteSession removes the session hash.
func (s *Store) DeleteSession(ctx context.Context) error {
	if err := s.client.Del(ctx, sessionKey).Err(); err != nil {
		return fmt.Errorf("walkthrough/redis: delete session: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Journal Store
// ──────────────────────────────────────────────────

// AppendLog adds an entry to the journal stream, trimming it to the cap.
func (s *Store) AppendLog(ctx context.Context, e *journal.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("walkthrough/redis: encode log: %w", err)
	}
	err = s.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: journalKey,
		MaxLen: s.journalCap,
		Approx: true,
		Values: map[string]any{
			"session_id": e.SessionID,
			"entry":      string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("walkthrough/redis: append log: %w", err)
	}
	return nil
}

// ListLogs walks the journal stream backwards, newest first.
func (s *Store) ListLogs(ctx context.Context, f journal.Filter) ([]*journal.Entry, error) {
	const page = 256

	var out []*journal.Entry
	end := "+"
	for {
		msgs, err := s.client.XRevRangeN(ctx, journalKey, end, "-", page).Result()
		if err != nil {
			return nil, fmt.Errorf("walkthrough/redis: list logs: %w", err)
		}
		for _, msg := range msgs {
			if f.SessionID != "" {
				if sid, _ := msg.Values["session_id"].(string); sid != f.SessionID {
					continue
				}
			}
			raw, ok := msg.Values["entry"].(string)
			if !ok {
				continue
			}
			var e journal.Entry
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				s.logger.Warn("walkthrough/redis: skipping undecodable journal entry",
					slog.String("stream_id", msg.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			out = append(out, &e)
			if f.Limit > 0 && len(out) >= f.Limit {
				return out, nil
			}
		}
		if len(msgs) < page {
			return out, nil
		}
		end = "(" + msgs[len(msgs)-1].ID
	}
}
