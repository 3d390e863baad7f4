package memory

import (
	"context"
	"errors"
	"testing"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/id"
	"github.com/xraph/walkthrough/journal"
	"github.com/xraph/walkthrough/machine"
	"github.com/xraph/walkthrough/session"
	"github.com/xraph/walkthrough/store/storetest"
)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Session Store tests
// ──────────────────────────────────────────────────

func newSession() *session.Session {
	return &session.Session{
		ID:         id.NewSessionID(),
		WorkflowID: 7,
		Steps:      []session.Step{{Index: 0, ActionType: "click", Selector: "#a"}},
		Snapshot:   machine.Snapshot{State: machine.StateInitializing, TotalSteps: 1},
		Status:     session.StatusActive,
		Tabs:       session.Tabs{Primary: 3, IDs: []int{3}},
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if _, err := s.LoadSession(ctx); !errors.Is(err, walkthrough.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	sess := newSession()
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := s.LoadSession(ctx)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.ID.String() != sess.ID.String() {
		t.Errorf("ID = %s, want %s", got.ID, sess.ID)
	}
	if got.State != machine.StateInitializing {
		t.Errorf("State = %s", got.State)
	}

	if err := s.DeleteSession(ctx); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.LoadSession(ctx); !errors.Is(err, walkthrough.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after delete, got %v", err)
	}
	if err := s.DeleteSession(ctx); err != nil {
		t.Errorf("deleting a missing session should succeed, got %v", err)
	}
}

func TestSessionIsCopied(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	sess := newSession()
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	sess.Tabs.IDs[0] = 99

	got, err := s.LoadSession(ctx)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.Tabs.IDs[0] != 3 {
		t.Errorf("stored record aliased caller slice: %v", got.Tabs.IDs)
	}
}

// ──────────────────────────────────────────────────
// Journal Store tests
// ──────────────────────────────────────────────────

func TestListLogs(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	for i, sid := range []string{"a", "b", "a", "a"} {
		e := &journal.Entry{ID: id.NewLogID(), SessionID: sid, StepIndex: i, Kind: "log"}
		if err := s.AppendLog(ctx, e); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}

	all, err := s.ListLogs(ctx, journal.Filter{})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(all))
	}
	if all[0].StepIndex != 3 {
		t.Errorf("expected newest first, got step %d", all[0].StepIndex)
	}

	onlyA, err := s.ListLogs(ctx, journal.Filter{SessionID: "a", Limit: 2})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(onlyA) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(onlyA))
	}
	if onlyA[0].StepIndex != 3 || onlyA[1].StepIndex != 2 {
		t.Errorf("unexpected order: %d, %d", onlyA[0].StepIndex, onlyA[1].StepIndex)
	}
}

func TestJournalIsCapped(t *testing.T) {
	t.Parallel()
	s := New(WithJournalCap(10))
	ctx := context.Background()

	for i := range 500 {
		e := &journal.Entry{ID: id.NewLogID(), StepIndex: i, Kind: "log"}
		if err := s.AppendLog(ctx, e); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}

	all, err := s.ListLogs(ctx, journal.Filter{})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(all) != 10 {
		t.Fatalf("kept %d entries, want 10", len(all))
	}
	if all[0].StepIndex != 499 || all[9].StepIndex != 490 {
		t.Errorf("kept steps %d..%d, want 499..490", all[0].StepIndex, all[9].StepIndex)
	}

	if New().journalCap != DefaultJournalCap {
		t.Errorf("default cap = %d, want %d", New().journalCap, DefaultJournalCap)
	}
}

func TestConformance(t *testing.T) {
	t.Parallel()
	storetest.Run(t, New())
}
