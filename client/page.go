package client

import (
	"context"

	"github.com/xraph/walkthrough/gateway"
	"github.com/xraph/walkthrough/router"
	"github.com/xraph/walkthrough/wire"
)

// ── Navigation commands ─────────────────────────────

// Next advances manually.
func (c *Client) Next(ctx context.Context) (*router.Result, error) {
	return call[router.Result](ctx, c, wire.MethodNext, nil)
}

// Previous moves back one step.
func (c *Client) Previous(ctx context.Context) (*router.Result, error) {
	return call[router.Result](ctx, c, wire.MethodPrev, nil)
}

// JumpTo moves the cursor to step.
func (c *Client) JumpTo(ctx context.Context, step int) (*router.Result, error) {
	return call[router.Result](ctx, c, wire.MethodJumpTo, wire.JumpToRequest{StepIndex: step})
}

// Retry re-renders the current step.
func (c *Client) Retry(ctx context.Context) (*router.Result, error) {
	return call[router.Result](ctx, c, wire.MethodRetry, nil)
}

// Skip advances without an action.
func (c *Client) Skip(ctx context.Context) (*router.Result, error) {
	return call[router.Result](ctx, c, wire.MethodSkip, nil)
}

// Exit ends the session. An empty reason means user_exit.
func (c *Client) Exit(ctx context.Context, reason string) (*gateway.Ack, error) {
	return call[gateway.Ack](ctx, c, wire.MethodExit, wire.ExitRequest{Reason: reason})
}

// State returns the current session, if any.
func (c *Client) State(ctx context.Context) (*router.Result, error) {
	return call[router.Result](ctx, c, wire.MethodGetState, nil)
}

// ReportAction reports a user action on the step target.
func (c *Client) ReportAction(ctx context.Context, rep gateway.ActionReport) (*router.Result, error) {
	return call[router.Result](ctx, c, wire.MethodReportAction, rep)
}

// Start starts a catalog workflow in this tab.
func (c *Client) Start(ctx context.Context, workflowID int64) (*router.Result, error) {
	return call[router.Result](ctx, c, wire.MethodStart, gateway.StartRequest{WorkflowID: workflowID})
}

// ── Page notices ────────────────────────────────────

// Ready announces that the page can render, at url.
func (c *Client) Ready(ctx context.Context, url string) (*gateway.ReadyResponse, error) {
	return call[gateway.ReadyResponse](ctx, c, wire.MethodTabReady, gateway.ReadyNotice{TabID: c.tab, URL: url})
}

// ElementStatus reports whether the step target was found.
func (c *Client) ElementStatus(ctx context.Context, step int, found bool) (*gateway.Ack, error) {
	return call[gateway.Ack](ctx, c, wire.MethodElementStatus, gateway.ElementStatus{StepIndex: step, Found: found})
}

// HealingResult reports a healing outcome.
func (c *Client) HealingResult(ctx context.Context, hr gateway.HealingResult) (*gateway.Ack, error) {
	return call[gateway.Ack](ctx, c, wire.MethodHealingResult, hr)
}

// AppendLog records an execution log entry.
func (c *Client) AppendLog(ctx context.Context, e gateway.LogEntry) (*gateway.Ack, error) {
	return call[gateway.Ack](ctx, c, wire.MethodLogAppend, e)
}

// SPANavigation reports a client-side route change to url.
func (c *Client) SPANavigation(ctx context.Context, url string) (*gateway.Ack, error) {
	return call[gateway.Ack](ctx, c, wire.MethodSPANavigation, gateway.SPANotice{URL: url})
}

// Identity asks the server which tab this connection speaks for.
func (c *Client) Identity(ctx context.Context) (int, error) {
	out, err := call[gateway.TabIdentity](ctx, c, wire.MethodTabIdentity, nil)
	if err != nil {
		return 0, err
	}
	return out.TabID, nil
}

// TabOpened reports that tab was opened from this one.
func (c *Client) TabOpened(ctx context.Context, tab int) (*gateway.Ack, error) {
	return call[gateway.Ack](ctx, c, wire.MethodTabOpened, gateway.TabOpened{TabID: tab, OpenerTabID: c.tab})
}

// TabClosed reports that this tab is closing.
func (c *Client) TabClosed(ctx context.Context) (*gateway.Ack, error) {
	return call[gateway.Ack](ctx, c, wire.MethodTabClosed, wire.TabClosedRequest{TabID: c.tab})
}
