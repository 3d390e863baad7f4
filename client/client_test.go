package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/advance"
	"github.com/xraph/walkthrough/client"
	"github.com/xraph/walkthrough/ext"
	"github.com/xraph/walkthrough/gateway"
	"github.com/xraph/walkthrough/machine"
	"github.com/xraph/walkthrough/router"
	"github.com/xraph/walkthrough/session"
	"github.com/xraph/walkthrough/store/memory"
	"github.com/xraph/walkthrough/stream"
	"github.com/xraph/walkthrough/wire"
)

// ── Test Helpers ──────────────────────────────────────

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type catalog map[int64]session.Workflow

func (c catalog) Workflow(_ context.Context, id int64) (session.Workflow, error) {
	wf, ok := c[id]
	if !ok {
		return session.Workflow{}, walkthrough.ErrWorkflowNotFound
	}
	return wf, nil
}

func testCatalog() catalog {
	return catalog{3: {
		ID:          3,
		Name:        "Create a project",
		StartingURL: "https://app.test/",
		Steps: []session.Step{
			{ActionType: "click", Selector: "#new", Instruction: "Click New"},
			{ActionType: "click", Selector: "#save", Instruction: "Click Save"},
		},
	}}
}

// setupServer builds the full page stack behind an httptest server and
// returns its ws:// URL.
func setupServer(t *testing.T, opts ...wire.Option) string {
	t.Helper()
	logger := testLogger()

	broker := stream.NewBroker(logger)
	reg := ext.NewRegistry(logger)
	reg.Register(broker)

	mgr := session.NewManager(memory.New(),
		session.WithLogger(logger),
		session.WithNotifier(broker),
		session.WithObserver(reg),
	)
	sched := advance.NewScheduler(logger)
	rt := router.New(mgr, sched, router.WithLogger(logger), router.WithPolicy(advance.Policy{
		Click:   20 * time.Millisecond,
		Select:  20 * time.Millisecond,
		Default: 20 * time.Millisecond,
	}))
	reg.Register(rt)

	gw := gateway.New(mgr, rt, gateway.WithLogger(logger), gateway.WithCatalog(testCatalog()))
	srv := wire.NewServer(broker, wire.NewHandler(gw, logger),
		append([]wire.Option{wire.WithLogger(logger)}, opts...)...,
	)

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		_ = srv.Close()
		ts.Close()
		_ = sched.Close(context.Background())
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string, opts ...client.Option) *client.Client {
	t.Helper()
	c, err := client.Dial(url, append([]client.Option{client.WithLogger(testLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitEvent(t *testing.T, ch <-chan *stream.Event, typ stream.EventType) *stream.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed waiting for %s", typ)
			}
			if evt.Type == typ {
				return evt
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
			return nil
		}
	}
}

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ── Tests ─────────────────────────────────────────────

func TestClient_DialAndClose(t *testing.T) {
	url := setupServer(t)
	c := dial(t, url, client.WithTab(1))

	if c.ConnID() == "" {
		t.Error("expected a connection id")
	}
	if c.Tab() != 1 {
		t.Errorf("Tab = %d", c.Tab())
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := c.State(context.Background()); !errors.Is(err, client.ErrClosed) {
		t.Errorf("State after Close = %v, want ErrClosed", err)
	}
}

func TestClient_DialRequiresTab(t *testing.T) {
	url := setupServer(t)
	if _, err := client.Dial(url); err == nil {
		t.Fatal("expected error without a tab id")
	}
}

func TestClient_DialAuthFailure(t *testing.T) {
	url := setupServer(t, wire.WithAuth(wire.NewAPIKeyAuthenticator(wire.APIKeyEntry{
		Token:    "ext_good",
		Identity: wire.Identity{Subject: "extension", Scopes: []string{wire.ScopeAll}},
	})))

	_, err := client.Dial(url, client.WithTab(1), client.WithToken("ext_bad"), client.WithLogger(testLogger()))
	var werr *client.Error
	if !errors.As(err, &werr) || werr.Code != wire.ErrCodeUnauthorized {
		t.Fatalf("err = %v, want unauthorized error frame", err)
	}

	dial(t, url, client.WithTab(1), client.WithToken("ext_good"))
}

func TestClient_Identity(t *testing.T) {
	url := setupServer(t)
	c := dial(t, url, client.WithTab(17))

	tab, err := c.Identity(ctxTimeout(t))
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if tab != 17 {
		t.Errorf("tab = %d, want 17", tab)
	}
}

func TestClient_WalkthroughE2E(t *testing.T) {
	for _, format := range []string{wire.CodecNameJSON, wire.CodecNameMsgpack} {
		t.Run(format, func(t *testing.T) {
			url := setupServer(t)
			c := dial(t, url, client.WithTab(1), client.WithFormat(format))
			ctx := ctxTimeout(t)

			res, err := c.Start(ctx, 3)
			if err != nil || !res.Success {
				t.Fatalf("Start = %+v, %v", res, err)
			}
			waitEvent(t, c.Events(), stream.EventSessionStarted)

			ready, err := c.Ready(ctx, "https://app.test/")
			if err != nil || !ready.HasActiveSession {
				t.Fatalf("Ready = %+v, %v", ready, err)
			}

			for step := range 2 {
				if ack, err := c.ElementStatus(ctx, step, true); err != nil || !ack.Success {
					t.Fatalf("ElementStatus(%d) = %+v, %v", step, ack, err)
				}
				res, err := c.ReportAction(ctx, gateway.ActionReport{StepIndex: step, ActionType: "click", Valid: true})
				if err != nil || !res.Success {
					t.Fatalf("ReportAction(%d) = %+v, %v", step, res, err)
				}
				evt := waitEvent(t, c.Events(), stream.EventSessionStepChanged)
				var data stream.SessionEventData
				if err := json.Unmarshal(evt.Data, &data); err != nil {
					t.Fatalf("event data: %v", err)
				}
				if data.FromStep == nil || *data.FromStep != step {
					t.Errorf("from_step = %v, want %d", data.FromStep, step)
				}
			}

			state, err := c.State(ctx)
			if err != nil {
				t.Fatalf("State: %v", err)
			}
			if state.State == nil || state.State.State != machine.StateCompleted {
				t.Fatalf("final state = %+v", state.State)
			}
		})
	}
}

func TestClient_ExitNotifiesTab(t *testing.T) {
	url := setupServer(t)
	c := dial(t, url, client.WithTab(1))
	ctx := ctxTimeout(t)

	if res, err := c.Start(ctx, 3); err != nil || !res.Success {
		t.Fatalf("Start = %+v, %v", res, err)
	}
	ack, err := c.Exit(ctx, "")
	if err != nil || !ack.Success {
		t.Fatalf("Exit = %+v, %v", ack, err)
	}

	evt := waitEvent(t, c.Events(), stream.EventNotice)
	var n session.Notice
	if err := json.Unmarshal(evt.Data, &n); err != nil {
		t.Fatalf("notice: %v", err)
	}
	if n.Kind != session.NoticeEnded || n.Reason != session.ReasonUserExit {
		t.Errorf("notice = %+v", n)
	}
}

func TestClient_CommandWithoutSession(t *testing.T) {
	url := setupServer(t)
	c := dial(t, url, client.WithTab(1))

	res, err := c.Next(ctxTimeout(t))
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if res.Success || res.Code != router.CodeNoActiveSession {
		t.Errorf("res = %+v", res)
	}
}

func TestClient_SecondTabJoinsAndWatches(t *testing.T) {
	url := setupServer(t)
	opener := dial(t, url, client.WithTab(1))
	ctx := ctxTimeout(t)

	res, err := opener.Start(ctx, 3)
	if err != nil || !res.Success {
		t.Fatalf("Start = %+v, %v", res, err)
	}

	child := dial(t, url, client.WithTab(2))
	events, err := child.Watch(ctx, res.State.ID.String())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if ack, err := opener.TabOpened(ctx, 2); err != nil || !ack.Success {
		t.Fatalf("TabOpened = %+v, %v", ack, err)
	}
	ready, err := child.Ready(ctx, "https://app.test/")
	if err != nil || !ready.HasActiveSession {
		t.Fatalf("child Ready = %+v, %v", ready, err)
	}

	if _, err := opener.Skip(ctx); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	waitEvent(t, events, stream.EventSessionStepChanged)

	if err := child.Unsubscribe(ctx, stream.SessionTopic(res.State.ID.String())); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
}

func TestClient_SubscribeInvalidTopic(t *testing.T) {
	url := setupServer(t)
	c := dial(t, url, client.WithTab(1))

	_, err := c.Subscribe(ctxTimeout(t), "nonsense")
	var werr *client.Error
	if !errors.As(err, &werr) || werr.Code != wire.ErrCodeBadRequest {
		t.Errorf("err = %v, want bad request", err)
	}
}

func TestClient_ScopeEnforced(t *testing.T) {
	url := setupServer(t, wire.WithAuth(wire.NewAPIKeyAuthenticator(wire.APIKeyEntry{
		Token:    "page_only",
		Identity: wire.Identity{Subject: "content-script", Scopes: []string{wire.ScopePage}},
	})))
	c := dial(t, url, client.WithTab(1), client.WithToken("page_only"))
	ctx := ctxTimeout(t)

	_, err := c.Start(ctx, 3)
	var werr *client.Error
	if !errors.As(err, &werr) || werr.Code != wire.ErrCodeForbidden {
		t.Fatalf("Start err = %v, want forbidden", err)
	}
	if _, err := c.State(ctx); err != nil {
		t.Errorf("page-scoped State failed: %v", err)
	}
}

func TestClient_RateLimited(t *testing.T) {
	url := setupServer(t, wire.WithRateLimit(0.001, 1))
	c := dial(t, url, client.WithTab(1))
	ctx := ctxTimeout(t)

	if _, err := c.State(ctx); err != nil {
		t.Fatalf("first request: %v", err)
	}
	_, err := c.State(ctx)
	var werr *client.Error
	if !errors.As(err, &werr) || werr.Code != wire.ErrCodeTooManyRequests {
		t.Errorf("second request err = %v, want 429", err)
	}
}

func TestClient_ContextTimeout(t *testing.T) {
	url := setupServer(t)
	c := dial(t, url, client.WithTab(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.State(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
