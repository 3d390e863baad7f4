// Package storetest holds the conformance suite every store backend runs
// from its own tests.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/id"
	"github.com/xraph/walkthrough/journal"
	"github.com/xraph/walkthrough/machine"
	"github.com/xraph/walkthrough/session"
	"github.com/xraph/walkthrough/store"
)

// NewSession returns a populated session record.
func NewSession() *session.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &session.Session{
		ID:           id.NewSessionID(),
		WorkflowID:   7,
		WorkflowName: "Checkout",
		StartingURL:  "https://shop.test/",
		Steps: []session.Step{
			{Index: 0, ActionType: "click", Selector: "#buy", Instruction: "Buy"},
			{Index: 1, ActionType: "select", Selector: "#size", ExpectedValue: "M"},
		},
		Snapshot: machine.Snapshot{
			State:         machine.StateWaitingAction,
			StepIndex:     1,
			TotalSteps:    2,
			RetryAttempts: map[int]int{1: 2},
			HealedSteps:   map[int]machine.Heal{0: {Selector: "#buy2", Confidence: 0.9, AIValidated: true}},
		},
		Status:    session.StatusActive,
		Tabs:      session.Tabs{Primary: 3, IDs: []int{3, 8}},
		StartedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(30 * time.Minute),
	}
}

// Run exercises s against the session and journal contracts. The store
// must start empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	t.Run("Session", func(t *testing.T) { testSession(t, s) })
	t.Run("Journal", func(t *testing.T) { testJournal(t, s) })
}

func testSession(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, err := s.LoadSession(ctx); !errors.Is(err, walkthrough.ErrSessionNotFound) {
		t.Fatalf("LoadSession on empty store: err = %v, want ErrSessionNotFound", err)
	}

	sess := NewSession()
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
	if got.State != machine.StateWaitingAction || got.StepIndex != 1 || got.TotalSteps != 2 {
		t.Errorf("snapshot = %+v", got.Snapshot)
	}
	if got.RetryAttempts[1] != 2 {
		t.Errorf("RetryAttempts = %v", got.RetryAttempts)
	}
	if h := got.HealedSteps[0]; h.Selector != "#buy2" || !h.AIValidated {
		t.Errorf("HealedSteps = %v", got.HealedSteps)
	}
	if len(got.Steps) != 2 || got.Steps[1].ExpectedValue != "M" {
		t.Errorf("Steps = %+v", got.Steps)
	}
	if got.Tabs.Primary != 3 || len(got.Tabs.IDs) != 2 {
		t.Errorf("Tabs = %+v", got.Tabs)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, sess.ExpiresAt)
	}

	replacement := NewSession()
	replacement.Snapshot.State = machine.StateShowingStep
	replacement.Snapshot.StepIndex = 0
	if err := s.SaveSession(ctx, replacement); err != nil {
		t.Fatalf("SaveSession(replacement): %v", err)
	}
	got, err = s.LoadSession(ctx)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.ID.String() != replacement.ID.String() || got.State != machine.StateShowingStep {
		t.Errorf("replacement not stored: %s %s", got.ID, got.State)
	}

	if err := s.DeleteSession(ctx); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.LoadSession(ctx); !errors.Is(err, walkthrough.ErrSessionNotFound) {
		t.Errorf("LoadSession after delete: err = %v, want ErrSessionNotFound", err)
	}
	if err := s.DeleteSession(ctx); err != nil {
		t.Errorf("deleting a missing session should succeed, got %v", err)
	}
}

func testJournal(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, sid := range []string{"a", "b", "a", "a"} {
		e := &journal.Entry{
			ID:        id.NewLogID(),
			SessionID: sid,
			TabID:     3,
			StepIndex: i,
			Kind:      "log",
			Message:   "entry",
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		if i == 0 {
			e.Data = json.RawMessage(`{"k":"v"}`)
		}
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
	oldest := all[3]
	if oldest.Kind != "log" || oldest.TabID != 3 || oldest.ID.IsNil() {
		t.Errorf("oldest = %+v", oldest)
	}
	var data map[string]string
	if err := json.Unmarshal(oldest.Data, &data); err != nil || data["k"] != "v" {
		t.Errorf("Data = %s (%v)", oldest.Data, err)
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
