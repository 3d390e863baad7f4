package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/engine"
	"github.com/xraph/walkthrough/gateway"
	"github.com/xraph/walkthrough/machine"
	mw "github.com/xraph/walkthrough/middleware"
	"github.com/xraph/walkthrough/session"
	"github.com/xraph/walkthrough/store/memory"
	"github.com/xraph/walkthrough/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticCatalog map[int64]session.Workflow

func (c staticCatalog) Workflow(_ context.Context, id int64) (session.Workflow, error) {
	wf, ok := c[id]
	if !ok {
		return session.Workflow{}, walkthrough.ErrWorkflowNotFound
	}
	return wf, nil
}

var testCatalog = staticCatalog{1: {
	ID:   1,
	Name: "Rename a file",
	Steps: []session.Step{
		{ActionType: "click", Selector: "#file"},
		{ActionType: "input_commit", Selector: "#name"},
	},
}}

// recordingExt records lifecycle hooks.
type recordingExt struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingExt) Name() string { return "recording" }

func (e *recordingExt) OnSessionStarted(_ context.Context, _ *session.Session) error {
	e.add("started")
	return nil
}

func (e *recordingExt) OnSessionEnded(_ context.Context, _ *session.Session, r session.EndReason) error {
	e.add("ended:" + string(r))
	return nil
}

func (e *recordingExt) OnShutdown(_ context.Context) error {
	e.add("shutdown")
	return nil
}

func (e *recordingExt) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, s)
}

func (e *recordingExt) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func TestBuild_RequiresStore(t *testing.T) {
	t.Parallel()
	if _, err := engine.Build(walkthrough.DefaultConfig(), nil); !errors.Is(err, walkthrough.ErrNoStore) {
		t.Errorf("err = %v, want ErrNoStore", err)
	}
}

func TestEngine_EndToEnd(t *testing.T) {
	t.Parallel()
	rec := &recordingExt{}
	eng, err := engine.Build(walkthrough.DefaultConfig(), memory.New(),
		engine.WithLogger(testLogger()),
		engine.WithCatalog(testCatalog),
		engine.WithExtension(rec),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx := context.Background()
	gw := eng.Gateway()

	if res := gw.Start(ctx, 4, gateway.StartRequest{WorkflowID: 1}); !res.Success {
		t.Fatalf("Start = %+v", res)
	}
	ready, err := gw.Ready(ctx, gateway.ReadyNotice{TabID: 4, URL: "https://app.test/"})
	if err != nil || !ready.HasActiveSession || ready.State.State != machine.StateShowingStep {
		t.Fatalf("Ready = %+v, %v", ready, err)
	}

	if res := eng.Router().Skip(ctx); !res.Success || res.State.StepIndex != 1 {
		t.Fatalf("Skip = %+v", res)
	}
	if res := eng.Router().Exit(ctx, ""); !res.Success {
		t.Fatalf("Exit = %+v", res)
	}
	if s, _ := eng.Manager().Current(ctx); s != nil {
		t.Errorf("session survived exit: %+v", s)
	}

	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	want := []string{"started", "ended:user_exit", "shutdown"}
	got := rec.Events()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEngine_StopClosesManager(t *testing.T) {
	t.Parallel()
	eng, err := engine.Build(walkthrough.DefaultConfig(), memory.New(), engine.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := eng.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := eng.Manager().Current(context.Background()); !errors.Is(err, walkthrough.ErrStoreClosed) {
		t.Errorf("Current after Stop: err = %v, want ErrStoreClosed", err)
	}
}

func TestEngine_MessageChainUsesMeterProvider(t *testing.T) {
	t.Parallel()
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	var seen []string
	var mu sync.Mutex
	spy := func(ctx context.Context, c *mw.Call, next mw.Handler) error {
		mu.Lock()
		seen = append(seen, c.Method)
		mu.Unlock()
		return next(ctx)
	}

	eng, err := engine.Build(walkthrough.DefaultConfig(), memory.New(),
		engine.WithLogger(testLogger()),
		engine.WithMeterProvider(mp),
		engine.WithMiddleware(spy),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })

	frame, err := wire.NewRequestFrame(wire.MethodGetState, nil)
	if err != nil {
		t.Fatalf("NewRequestFrame: %v", err)
	}
	conn := wire.NewConnection("c1", 8, &wire.Identity{Subject: "t", Scopes: []string{wire.ScopeAll}}, &wire.JSONCodec{})
	resp := eng.Wire().Handler().Handle(context.Background(), frame, conn)
	if resp == nil || resp.Type != wire.FrameResponse {
		t.Fatalf("response = %+v", resp)
	}

	mu.Lock()
	if len(seen) != 1 || seen[0] != wire.MethodGetState {
		t.Errorf("user middleware saw %v", seen)
	}
	mu.Unlock()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "walkthrough.message.count" {
				found = true
			}
		}
	}
	if !found {
		t.Error("walkthrough.message.count not recorded on the configured provider")
	}
}

func TestEngine_RecordsLifecycleMetrics(t *testing.T) {
	t.Parallel()
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	eng, err := engine.Build(walkthrough.DefaultConfig(), memory.New(),
		engine.WithLogger(testLogger()),
		engine.WithCatalog(testCatalog),
		engine.WithMeterProvider(mp),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })

	if res := eng.Gateway().Start(context.Background(), 3, gateway.StartRequest{WorkflowID: 1}); !res.Success {
		t.Fatalf("Start = %+v", res)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "walkthrough.session.started" {
				return
			}
		}
	}
	t.Error("walkthrough.session.started not recorded")
}
