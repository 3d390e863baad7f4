// Package gateway validates signals from page contexts against the live
// session and forwards the relevant ones to the step machine.
//
// Pages are torn down and rebuilt at any time, so every signal may be
// stale: it can name a step that is no longer current, arrive from a tab
// that left the session, or belong to a session that was replaced. Each
// handler reads the record, then dispatches through a guard that re-checks
// session id, step index and machine state inside the session manager's
// critical section. Stale signals are acknowledged with success and
// change nothing.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/journal"
	"github.com/xraph/walkthrough/machine"
	"github.com/xraph/walkthrough/router"
	"github.com/xraph/walkthrough/session"
)

// HealRequest asks the healer to repair the locator of a step.
type HealRequest struct {
	SessionID string
	TabID     int
	StepIndex int
	Step      session.Step
}

// Healer repairs locators that no longer match. Results come back through
// Gateway.HealingResult.
type Healer interface {
	RequestHealing(ctx context.Context, req HealRequest) error
}

// Catalog resolves workflows by id.
type Catalog interface {
	Workflow(ctx context.Context, id int64) (session.Workflow, error)
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithHealer sets the healer invoked when a step target is missing.
func WithHealer(h Healer) Option {
	return func(g *Gateway) { g.healer = h }
}

// WithJournal sets the recorder for execution logs.
func WithJournal(r *journal.Recorder) Option {
	return func(g *Gateway) { g.journal = r }
}

// WithCatalog sets the workflow catalog used by Start.
func WithCatalog(c Catalog) Option {
	return func(g *Gateway) { g.catalog = c }
}

// Gateway handles page-context messages.
type Gateway struct {
	mgr     *session.Manager
	router  *router.Router
	healer  Healer
	journal *journal.Recorder
	catalog Catalog
	logger  *slog.Logger
}

// New creates a gateway.
func New(mgr *session.Manager, rt *router.Router, opts ...Option) *Gateway {
	g := &Gateway{
		mgr:    mgr,
		router: rt,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Router returns the command router.
func (g *Gateway) Router() *router.Router { return g.router }

// Ready handles page readiness. Member tabs get the current record and
// re-render the current step; a primary that was dropped from the member
// set is added back.
func (g *Gateway) Ready(ctx context.Context, n ReadyNotice) (ReadyResponse, error) {
	s, member, err := g.mgr.Read(ctx, n.TabID)
	if err != nil {
		return ReadyResponse{}, err
	}
	if s == nil || !member {
		return ReadyResponse{HasActiveSession: false}, nil
	}

	if !slices.Contains(s.Tabs.IDs, n.TabID) {
		if err := g.mgr.AddTab(ctx, n.TabID); err != nil && !errors.Is(err, walkthrough.ErrNoActiveSession) {
			return ReadyResponse{}, err
		}
	}

	cur, _, err := g.mgr.DispatchIf(ctx, sameSession(s), machine.TabReady{TabID: n.TabID, URL: n.URL})
	switch {
	case errors.Is(err, walkthrough.ErrNoActiveSession):
		return ReadyResponse{HasActiveSession: false}, nil
	case isStale(err):
		g.logger.Debug("readiness ignored",
			slog.Int("tab_id", n.TabID),
			slog.String("error", err.Error()),
		)
	case err != nil:
		return ReadyResponse{}, err
	}
	if cur == nil {
		return ReadyResponse{HasActiveSession: false}, nil
	}
	return ReadyResponse{HasActiveSession: true, State: cur}, nil
}

// ElementStatus handles the found/missing report for the current step.
// A missing element hands the step to the healer.
func (g *Gateway) ElementStatus(ctx context.Context, tab int, st ElementStatus) (Ack, error) {
	s, member, err := g.mgr.Read(ctx, tab)
	if err != nil {
		return Ack{}, err
	}
	if s == nil || !member {
		return Ack{Success: true}, nil
	}

	guard := func(cur *session.Session) bool {
		return cur.ID.String() == s.ID.String() &&
			cur.StepIndex == st.StepIndex &&
			cur.State == machine.StateShowingStep
	}
	var ev machine.Event = machine.ElementFound{StepIndex: st.StepIndex}
	if !st.Found {
		ev = machine.ElementNotFound{StepIndex: st.StepIndex}
	}

	cur, applied, err := g.mgr.DispatchIf(ctx, guard, ev)
	if err != nil {
		return g.ack(err)
	}
	if applied && !st.Found {
		g.requestHealing(ctx, cur, tab)
	}
	return Ack{Success: true}, nil
}

// ReportAction handles a user action on the current step. A valid action
// schedules the advance; an invalid one is counted with a normalized
// reason.
func (g *Gateway) ReportAction(ctx context.Context, tab int, rep ActionReport) router.Result {
	s, member, err := g.mgr.Read(ctx, tab)
	if err != nil {
		return router.Fail(err, nil)
	}
	if s == nil {
		return router.Fail(walkthrough.ErrNoActiveSession, nil)
	}
	if !member {
		return router.OK(s)
	}

	guard := func(cur *session.Session) bool {
		return cur.ID.String() == s.ID.String() &&
			cur.StepIndex == rep.StepIndex &&
			cur.State == machine.StateWaitingAction
	}

	if !rep.Valid {
		reason := NormalizeReason(rep.Reason)
		cur, _, err := g.mgr.DispatchIf(ctx, guard, machine.ActionInvalid{StepIndex: rep.StepIndex, Reason: reason})
		if err != nil && !isStale(err) {
			return router.Fail(err, cur)
		}
		return router.OK(cur)
	}

	cur, applied, err := g.mgr.DispatchIf(ctx, guard, machine.ActionDetected{
		StepIndex:        rep.StepIndex,
		ActionType:       rep.ActionType,
		CausesNavigation: rep.CausesNavigation,
	})
	if err != nil && !isStale(err) {
		return router.Fail(err, cur)
	}
	if !applied {
		return router.OK(cur)
	}

	g.router.ScheduleAdvance(ctx, cur, rep.ActionType, rep.CausesNavigation)
	return g.router.GetState(ctx)
}

// HealingResult applies the healer's verdict for the current step.
func (g *Gateway) HealingResult(ctx context.Context, tab int, hr HealingResult) (Ack, error) {
	s, err := g.mgr.Current(ctx)
	if err != nil {
		return Ack{}, err
	}
	if s == nil {
		return Ack{Success: true}, nil
	}

	guard := func(cur *session.Session) bool {
		return cur.ID.String() == s.ID.String() &&
			cur.StepIndex == hr.StepIndex &&
			cur.State == machine.StateHealing
	}
	var ev machine.Event
	if hr.Result.Success {
		ev = machine.HealSuccess{
			StepIndex:   hr.StepIndex,
			Selector:    hr.Result.Selector,
			Confidence:  hr.Result.Confidence,
			AIValidated: hr.Result.AIValidated,
		}
	} else {
		ev = machine.HealFailed{StepIndex: hr.StepIndex, Reason: hr.Result.FailureReason}
	}

	if _, applied, err := g.mgr.DispatchIf(ctx, guard, ev); err != nil {
		return g.ack(err)
	} else if applied {
		g.logger.Info("healing result applied",
			slog.String("session_id", s.ID.String()),
			slog.Int("tab_id", tab),
			slog.Int("step_index", hr.StepIndex),
			slog.Bool("success", hr.Result.Success),
			slog.Float64("confidence", hr.Result.Confidence),
		)
	}
	return Ack{Success: true}, nil
}

// SPANavigation handles a client-side route change in a member tab. The
// start and end of the transition are applied in one step, so the machine
// never stays in NAVIGATING waiting for a load that will not come.
func (g *Gateway) SPANavigation(ctx context.Context, tab int, n SPANotice) (Ack, error) {
	s, member, err := g.mgr.Read(ctx, tab)
	if err != nil {
		return Ack{}, err
	}
	if s == nil || !member {
		return Ack{Success: true}, nil
	}

	_, _, err = g.mgr.DispatchIf(ctx, sameSession(s),
		machine.URLChanged{URL: n.URL},
		machine.PageLoaded{URL: n.URL},
	)
	if err != nil {
		return g.ack(err)
	}
	return Ack{Success: true}, nil
}

// ExecutionLog records an execution log entry. It never changes session
// state.
func (g *Gateway) ExecutionLog(ctx context.Context, tab int, e LogEntry) (Ack, error) {
	if g.journal == nil {
		return Ack{Success: true}, nil
	}
	entry := journal.Entry{
		TabID:     tab,
		StepIndex: e.StepIndex,
		Kind:      e.Kind,
		Message:   e.Message,
		Data:      e.Data,
	}
	if s, err := g.mgr.Current(ctx); err == nil && s != nil {
		entry.SessionID = s.ID.String()
		entry.WorkflowID = s.WorkflowID
	}
	g.journal.Record(ctx, entry)
	return Ack{Success: true}, nil
}

// TabIdentity returns the caller's tab id.
func (g *Gateway) TabIdentity(tab int) TabIdentity {
	return TabIdentity{TabID: tab}
}

// TabOpened adds a tab to the session when its opener is a member.
func (g *Gateway) TabOpened(ctx context.Context, m TabOpened) (Ack, error) {
	s, openerMember, err := g.mgr.Read(ctx, m.OpenerTabID)
	if err != nil {
		return Ack{}, err
	}
	if s == nil || !openerMember || m.TabID == 0 {
		return Ack{Success: true}, nil
	}
	if err := g.mgr.AddTab(ctx, m.TabID); err != nil {
		return g.ack(err)
	}
	return Ack{Success: true}, nil
}

// TabClosed removes a tab from the session.
func (g *Gateway) TabClosed(ctx context.Context, tab int) (Ack, error) {
	if err := g.mgr.RemoveTab(ctx, tab); err != nil {
		return g.ack(err)
	}
	return Ack{Success: true}, nil
}

// Start loads a workflow from the catalog and starts it in tab.
func (g *Gateway) Start(ctx context.Context, tab int, req StartRequest) router.Result {
	if g.catalog == nil {
		return router.Fail(walkthrough.ErrWorkflowNotFound, nil)
	}
	wf, err := g.catalog.Workflow(ctx, req.WorkflowID)
	if err != nil {
		return router.Fail(err, nil)
	}
	s, err := g.mgr.Start(ctx, wf, tab)
	if err != nil {
		return router.Fail(err, nil)
	}
	return router.OK(s)
}

// NormalizeReason maps free-form invalid-action reasons onto the fixed
// set wrong_element, wrong_value, wrong_action and unknown.
func NormalizeReason(reason string) string {
	r := strings.ToLower(strings.TrimSpace(reason))
	r = strings.NewReplacer("-", "_", " ", "_").Replace(r)
	switch r {
	case ReasonWrongElement, "wrong_target", "element_mismatch", "element":
		return ReasonWrongElement
	case ReasonWrongValue, "value_mismatch", "value":
		return ReasonWrongValue
	case ReasonWrongAction, "wrong_action_type", "action_mismatch", "action":
		return ReasonWrongAction
	default:
		return ReasonUnknown
	}
}

func (g *Gateway) requestHealing(ctx context.Context, s *session.Session, tab int) {
	if g.healer == nil || s == nil {
		return
	}
	step, ok := s.CurrentStep()
	if !ok {
		return
	}
	req := HealRequest{
		SessionID: s.ID.String(),
		TabID:     tab,
		StepIndex: s.StepIndex,
		Step:      step,
	}
	if err := g.healer.RequestHealing(ctx, req); err != nil {
		g.logger.Warn("healing request failed",
			slog.String("session_id", req.SessionID),
			slog.Int("step_index", req.StepIndex),
			slog.String("error", err.Error()),
		)
	}
}

// ack turns stale or no-session errors into a successful acknowledgement.
func (g *Gateway) ack(err error) (Ack, error) {
	if isStale(err) || errors.Is(err, walkthrough.ErrNoActiveSession) {
		return Ack{Success: true}, nil
	}
	return Ack{}, err
}

func isStale(err error) bool {
	return errors.Is(err, walkthrough.ErrStaleEvent) || errors.Is(err, walkthrough.ErrInvalidTransition)
}

func sameSession(s *session.Session) session.Guard {
	id := s.ID.String()
	return func(cur *session.Session) bool { return cur.ID.String() == id }
}
