// Package router turns user commands into step machine events and owns
// the automatic advance that follows a valid action.
package router

import (
	"context"
	"fmt"
	"log/slog"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/advance"
	"github.com/xraph/walkthrough/ext"
	"github.com/xraph/walkthrough/machine"
	"github.com/xraph/walkthrough/session"
)

// Router implements ext.SessionEnded to drop advances of ended sessions.
var (
	_ ext.Extension    = (*Router)(nil)
	_ ext.SessionEnded = (*Router)(nil)
)

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithPolicy overrides the advance delay policy.
func WithPolicy(p advance.Policy) Option {
	return func(r *Router) { r.policy = p }
}

// Router executes navigation commands against the session manager.
type Router struct {
	mgr    *session.Manager
	sched  *advance.Scheduler
	policy advance.Policy
	logger *slog.Logger
}

// New creates a router.
func New(mgr *session.Manager, sched *advance.Scheduler, opts ...Option) *Router {
	r := &Router{
		mgr:    mgr,
		sched:  sched,
		policy: advance.NewPolicy(walkthrough.DefaultConfig()),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements ext.Extension.
func (r *Router) Name() string { return "router" }

// OnSessionEnded implements ext.SessionEnded.
func (r *Router) OnSessionEnded(_ context.Context, s *session.Session, _ session.EndReason) error {
	r.sched.Cancel(s.ID.String())
	return nil
}

// Next advances manually. It is rejected at the last step.
func (r *Router) Next(ctx context.Context) Result {
	return r.command(ctx, machine.NextStep{Manual: true})
}

// Previous moves back one step. It is rejected at the first step.
func (r *Router) Previous(ctx context.Context) Result {
	return r.command(ctx, machine.PrevStep{})
}

// JumpToStep moves the cursor to index.
func (r *Router) JumpToStep(ctx context.Context, index int) Result {
	return r.command(ctx, machine.JumpTo{Index: index})
}

// Retry re-renders the current step and counts the attempt.
func (r *Router) Retry(ctx context.Context) Result {
	return r.command(ctx, machine.Retry{})
}

// Skip advances without an action, completing after the last step.
func (r *Router) Skip(ctx context.Context) Result {
	return r.command(ctx, machine.SkipStep{})
}

// Exit ends the session. An empty reason means user_exit.
func (r *Router) Exit(ctx context.Context, reason session.EndReason) Result {
	if reason == "" {
		reason = session.ReasonUserExit
	}
	cur, err := r.mgr.Current(ctx)
	if err != nil {
		return Fail(err, nil)
	}
	if cur == nil {
		return Fail(walkthrough.ErrNoActiveSession, nil)
	}
	r.sched.Cancel(cur.ID.String())

	if _, err := r.mgr.End(ctx, reason); err != nil {
		return Fail(err, nil)
	}
	return Result{Success: true}
}

// GetState returns the current session.
func (r *Router) GetState(ctx context.Context) Result {
	cur, err := r.mgr.Current(ctx)
	if err != nil {
		return Fail(err, nil)
	}
	if cur == nil {
		return Fail(walkthrough.ErrNoActiveSession, nil)
	}
	return OK(cur)
}

// command applies ev, provided the cursor did not move between reading and
// applying, and then cancels any pending advance. A rejected command leaves
// the pending advance in place.
func (r *Router) command(ctx context.Context, ev machine.Event) Result {
	cur, err := r.mgr.Current(ctx)
	if err != nil {
		return Fail(err, nil)
	}
	if cur == nil {
		return Fail(walkthrough.ErrNoActiveSession, nil)
	}

	s, applied, err := r.mgr.DispatchIf(ctx, SameStep(cur.ID.String(), cur.StepIndex), ev)
	if err != nil {
		r.logger.Debug("command rejected",
			slog.String("event", string(ev.Type())),
			slog.String("session_id", cur.ID.String()),
			slog.String("error", err.Error()),
		)
		return Fail(err, s)
	}
	if !applied {
		return Fail(fmt.Errorf("%w: step moved concurrently", walkthrough.ErrStaleEvent), s)
	}
	r.sched.CancelStep(cur.ID.String(), cur.StepIndex)
	return OK(s)
}

// ScheduleAdvance arranges the automatic advance after a valid action on
// s. Navigating actions advance inline; others wait for the policy delay.
func (r *Router) ScheduleAdvance(ctx context.Context, s *session.Session, actionType string, causesNavigation bool) {
	key := advance.Key{
		SessionID: s.ID.String(),
		StepIndex: s.StepIndex,
		State:     s.State,
	}
	delay := r.policy.Delay(actionType, causesNavigation)
	if delay <= 0 {
		r.sched.Cancel(key.SessionID)
		r.fire(ctx, key)
		return
	}
	r.sched.Schedule(key, delay, r.fire)
}

// fire applies a scheduled advance if the session is still where it was
// when the advance was scheduled.
func (r *Router) fire(ctx context.Context, key advance.Key) {
	guard := func(s *session.Session) bool {
		return s.ID.String() == key.SessionID &&
			s.StepIndex == key.StepIndex &&
			s.State.CanAdvance()
	}
	s, applied, err := r.mgr.DispatchIf(ctx, guard, machine.NextStep{})
	switch {
	case err != nil:
		r.logger.Debug("advance failed",
			slog.String("session_id", key.SessionID),
			slog.Int("step_index", key.StepIndex),
			slog.String("error", err.Error()),
		)
	case !applied:
		r.logger.Debug("advance dropped",
			slog.String("session_id", key.SessionID),
			slog.Int("step_index", key.StepIndex),
		)
	default:
		r.logger.Debug("advanced",
			slog.String("session_id", key.SessionID),
			slog.Int("step_index", s.StepIndex),
			slog.String("state", string(s.State)),
		)
	}
}

// SameStep is a guard that accepts the record only while it is the given
// session at the given step.
func SameStep(sessionID string, step int) session.Guard {
	return func(s *session.Session) bool {
		return s.ID.String() == sessionID && s.StepIndex == step
	}
}
