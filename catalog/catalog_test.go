package catalog_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const checkout = `id: 7
name: Checkout
starting_url: https://shop.test/
steps:
  - action_type: click
    selector: "#buy"
    instruction: Click "Buy now"
  - action_type: select
    selector: "#size"
    expected_value: M
    fallback_selectors: ["select[name=size]"]
    instruction: Pick a size
  - action_type: submit
    selector: "form#pay"
    instruction: Pay
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestOpen_LoadsWorkflows(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "checkout.yaml", checkout)
	writeFile(t, dir, "signup.yml", "id: 2\nname: Signup\nsteps:\n  - action_type: click\n    selector: a\n")
	writeFile(t, dir, "README.md", "not a workflow")
	writeFile(t, dir, ".hidden.yaml", "garbage: [")

	d, err := catalog.Open(dir, catalog.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	wf, err := d.Workflow(context.Background(), 7)
	if err != nil {
		t.Fatalf("Workflow(7): %v", err)
	}
	if wf.Name != "Checkout" || wf.StartingURL != "https://shop.test/" || len(wf.Steps) != 3 {
		t.Fatalf("workflow = %+v", wf)
	}
	for i, s := range wf.Steps {
		if s.Index != i {
			t.Errorf("step %d has index %d", i, s.Index)
		}
	}
	if wf.Steps[1].ExpectedValue != "M" || len(wf.Steps[1].FallbackSelectors) != 1 {
		t.Errorf("step 1 = %+v", wf.Steps[1])
	}

	all := d.Workflows()
	if len(all) != 2 || all[0].ID != 2 || all[1].ID != 7 {
		t.Errorf("Workflows() ids = %v", all)
	}
}

func TestWorkflow_NotFound(t *testing.T) {
	t.Parallel()
	d, err := catalog.Open(t.TempDir(), catalog.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := d.Workflow(context.Background(), 99); !errors.Is(err, walkthrough.ErrWorkflowNotFound) {
		t.Errorf("err = %v, want ErrWorkflowNotFound", err)
	}
}

func TestWorkflow_ReturnsCopy(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "checkout.yaml", checkout)
	d, err := catalog.Open(dir, catalog.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	wf, _ := d.Workflow(context.Background(), 7)
	wf.Steps[0].Selector = "mutated"

	again, _ := d.Workflow(context.Background(), 7)
	if again.Steps[0].Selector != "#buy" {
		t.Errorf("catalog state leaked through returned workflow")
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"zero id", "id: 0\nsteps: []\n"},
		{"unknown field", "id: 1\ncolour: red\n"},
		{"missing action", "id: 1\nsteps:\n  - selector: a\n"},
		{"bad yaml", "id: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := catalog.Parse([]byte(tt.doc)); err == nil {
				t.Errorf("expected error for %q", tt.doc)
			}
		})
	}
}

func TestReload_DuplicateIDKeepsPrevious(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", checkout)
	d, err := catalog.Open(dir, catalog.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	writeFile(t, dir, "b.yaml", checkout)
	if err := d.Reload(); err == nil {
		t.Fatal("expected duplicate id error")
	}
	if _, err := d.Workflow(context.Background(), 7); err != nil {
		t.Errorf("previous catalog lost after failed reload: %v", err)
	}
}

func TestOpen_MissingDir(t *testing.T) {
	t.Parallel()
	if _, err := catalog.Open(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestWatch_PicksUpNewFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	d, err := catalog.Open(dir, catalog.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Watch(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		// Rewrite until the watcher has registered and seen the file.
		writeFile(t, dir, "checkout.yaml", checkout)
		if _, err := d.Workflow(context.Background(), 7); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never loaded the new workflow")
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
