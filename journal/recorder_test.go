package journal_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/xraph/walkthrough/journal"
	"github.com/xraph/walkthrough/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorder_Record(t *testing.T) {
	s := memory.New()
	rec := journal.NewRecorder(s, testLogger())
	ctx := context.Background()

	e := rec.Record(ctx, journal.Entry{SessionID: "wks_1", TabID: 4, StepIndex: 2, Message: "clicked"})
	if !strings.HasPrefix(e.ID.String(), "xlog_") {
		t.Errorf("ID = %q, want xlog_ prefix", e.ID.String())
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not stamped")
	}
	if e.Kind != "log" {
		t.Errorf("Kind = %q, want log", e.Kind)
	}

	got, err := rec.Recent(ctx, journal.Filter{SessionID: "wks_1"})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Message != "clicked" {
		t.Errorf("unexpected entries: %+v", got)
	}
}

type failingStore struct{ journal.Store }

func (failingStore) AppendLog(context.Context, *journal.Entry) error {
	return errors.New("disk full")
}

func TestRecorder_StoreFailureIsSwallowed(t *testing.T) {
	rec := journal.NewRecorder(failingStore{}, testLogger())
	e := rec.Record(context.Background(), journal.Entry{Kind: "action"})
	if e == nil || e.Kind != "action" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestRecorder_Store(t *testing.T) {
	rec := journal.NewRecorder(memory.New(), nil)
	if rec.Store() == nil {
		t.Fatal("expected non-nil store")
	}
}
