package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/id"
	"github.com/xraph/walkthrough/machine"
)

// Guard inspects the current record inside the manager's critical section.
// Returning false vetoes a dispatch without error.
type Guard func(s *Session) bool

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithTTL sets how long a record lives past its last mutation.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithNotifier sets where end notices are delivered.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithObserver sets the lifecycle observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// Manager is the single source of truth for the active session.
type Manager struct {
	mu       sync.Mutex
	store    Store
	notifier Notifier
	observer Observer
	logger   *slog.Logger
	ttl      time.Duration
	now      func() time.Time
	closed   bool
}

// NewManager creates a manager persisting through store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: slog.Default(),
		ttl:    walkthrough.DefaultConfig().SessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// effects collects side effects that must run after the lock is released.
type effects []func(context.Context)

func (fx *effects) add(f func(context.Context)) { *fx = append(*fx, f) }

func (fx effects) run(ctx context.Context) {
	for _, f := range fx {
		f(ctx)
	}
}

// Start begins a walkthrough of wf for tab, ending any existing session
// with reason replaced.
func (m *Manager) Start(ctx context.Context, wf Workflow, tab int) (*Session, error) {
	if len(wf.Steps) == 0 {
		return nil, fmt.Errorf("session: start workflow %d: %w", wf.ID, walkthrough.ErrEmptyWorkflow)
	}

	var fx effects
	m.mu.Lock()
	s, err := m.start(ctx, wf, tab, &fx)
	m.mu.Unlock()
	fx.run(ctx)
	return s, err
}

func (m *Manager) start(ctx context.Context, wf Workflow, tab int, fx *effects) (*Session, error) {
	if m.closed {
		return nil, walkthrough.ErrStoreClosed
	}
	prev, err := m.current(ctx, fx)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		if err := m.end(ctx, prev, ReasonReplaced, fx); err != nil {
			return nil, err
		}
	}

	steps := make([]Step, len(wf.Steps))
	for i, st := range wf.Steps {
		st.Index = i
		steps[i] = st
	}
	snap, err := machine.Apply(machine.New(len(steps)), machine.Start{})
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	s := &Session{
		ID:           id.NewSessionID(),
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		StartingURL:  wf.StartingURL,
		Steps:        steps,
		Snapshot:     snap,
		Status:       StatusActive,
		Tabs:         Tabs{Primary: tab, IDs: []int{tab}},
		StartedAt:    now,
	}
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}

	m.logger.Info("session started",
		slog.String("session_id", s.ID.String()),
		slog.Int64("workflow_id", wf.ID),
		slog.Int("tab_id", tab),
		slog.Int("total_steps", len(steps)),
	)

	out := s.Clone()
	if m.observer != nil {
		fx.add(func(ctx context.Context) { m.observer.EmitSessionStarted(ctx, out) })
	}
	return s.Clone(), nil
}

// Read returns the current session, or nil when there is none or it
// expired. isMember reports whether tab participates in it.
func (m *Manager) Read(ctx context.Context, tab int) (s *Session, isMember bool, err error) {
	var fx effects
	m.mu.Lock()
	cur, err := m.current(ctx, &fx)
	m.mu.Unlock()
	fx.run(ctx)

	if err != nil || cur == nil {
		return nil, false, err
	}
	return cur.Clone(), cur.IsMember(tab), nil
}

// Current returns the current session regardless of tab membership.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	s, _, err := m.Read(ctx, 0)
	return s, err
}

// Update merges p into the record. It reports false when there is no
// session.
func (m *Manager) Update(ctx context.Context, p Patch) (bool, error) {
	var fx effects
	m.mu.Lock()
	defer func() {
		m.mu.Unlock()
		fx.run(ctx)
	}()

	s, err := m.live(ctx, &fx)
	if err != nil || s == nil {
		return false, err
	}
	if p.Status != "" {
		s.Status = p.Status
	}
	if p.Error != nil {
		e := *p.Error
		s.Error = &e
	}
	return true, m.save(ctx, s)
}

// AddTab adds tab to the session. Adding a member again is a no-op.
func (m *Manager) AddTab(ctx context.Context, tab int) error {
	var fx effects
	m.mu.Lock()
	defer func() {
		m.mu.Unlock()
		fx.run(ctx)
	}()

	s, err := m.live(ctx, &fx)
	if err != nil {
		return err
	}
	if s == nil {
		return walkthrough.ErrNoActiveSession
	}
	if !s.Tabs.add(tab) {
		return nil
	}
	m.logger.Debug("tab joined session",
		slog.String("session_id", s.ID.String()),
		slog.Int("tab_id", tab),
	)
	return m.save(ctx, s)
}

// RemoveTab drops tab from the session. A removed primary is replaced by
// the lowest remaining tab id; removing the last tab ends the session with
// reason tabs_closed. Removing a non-member is a no-op.
func (m *Manager) RemoveTab(ctx context.Context, tab int) error {
	var fx effects
	m.mu.Lock()
	defer func() {
		m.mu.Unlock()
		fx.run(ctx)
	}()

	s, err := m.live(ctx, &fx)
	if err != nil || s == nil {
		return err
	}
	removed := s.Tabs.remove(tab)
	if !removed && s.Tabs.Primary != tab {
		return nil
	}

	if len(s.Tabs.IDs) == 0 {
		s.Tabs.Primary = 0
		return m.end(ctx, s, ReasonTabsClosed, &fx)
	}
	if s.Tabs.Primary == tab {
		s.Tabs.Primary = s.Tabs.IDs[0]
		m.logger.Info("primary tab promoted",
			slog.String("session_id", s.ID.String()),
			slog.Int("closed_tab_id", tab),
			slog.Int("primary_tab_id", s.Tabs.Primary),
		)
	}
	return m.save(ctx, s)
}

// End finishes the session: member tabs are notified, the record is
// erased and observers are told. It reports false when there was no
// session.
func (m *Manager) End(ctx context.Context, reason EndReason) (bool, error) {
	var fx effects
	m.mu.Lock()
	defer func() {
		m.mu.Unlock()
		fx.run(ctx)
	}()

	s, err := m.live(ctx, &fx)
	if err != nil || s == nil {
		return false, err
	}
	return true, m.end(ctx, s, reason, &fx)
}

// Dispatch applies ev to the current session.
func (m *Manager) Dispatch(ctx context.Context, ev machine.Event) (*Session, error) {
	s, _, err := m.DispatchIf(ctx, nil, ev)
	return s, err
}

// DispatchIf applies events atomically when guard accepts the current
// record. A nil guard always accepts. A vetoed dispatch returns the
// current record with applied false and no error. If any event is illegal
// none are applied.
func (m *Manager) DispatchIf(ctx context.Context, guard Guard, events ...machine.Event) (s *Session, applied bool, err error) {
	var fx effects
	m.mu.Lock()
	defer func() {
		m.mu.Unlock()
		fx.run(ctx)
	}()

	s, err = m.live(ctx, &fx)
	if err != nil {
		return nil, false, err
	}
	if s == nil {
		return nil, false, walkthrough.ErrNoActiveSession
	}
	if guard != nil && !guard(s.Clone()) {
		return s.Clone(), false, nil
	}

	from := s.StepIndex
	snap, err := machine.ApplyAll(s.Snapshot, events...)
	if err != nil {
		return s.Clone(), false, err
	}
	s.Snapshot = snap
	if snap.State == machine.StateCompleted {
		s.Status = StatusCompleted
	}
	if err := m.save(ctx, s); err != nil {
		return nil, false, err
	}

	if s.StepIndex != from {
		m.logger.Debug("step changed",
			slog.String("session_id", s.ID.String()),
			slog.Int("from", from),
			slog.Int("to", s.StepIndex),
			slog.String("state", string(s.State)),
		)
		out := s.Clone()
		fx.add(func(ctx context.Context) {
			m.notify(ctx, out, Notice{
				Kind:      NoticeStepChanged,
				SessionID: out.ID.String(),
				State:     string(out.State),
				StepIndex: out.StepIndex,
				Meta:      map[string]any{"from": from},
			})
			if m.observer != nil {
				m.observer.EmitStepChanged(ctx, out, from)
			}
		})
	}
	return s.Clone(), true, nil
}

// Close stops the manager. Later calls fail with ErrStoreClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Internals (caller holds m.mu)
// ──────────────────────────────────────────────────

// live is current with the closed check.
func (m *Manager) live(ctx context.Context, fx *effects) (*Session, error) {
	if m.closed {
		return nil, walkthrough.ErrStoreClosed
	}
	return m.current(ctx, fx)
}

// current loads the record. An expired record is erased and ended with
// reason timeout, and reads as absent.
func (m *Manager) current(ctx context.Context, fx *effects) (*Session, error) {
	s, err := m.store.LoadSession(ctx)
	if errors.Is(err, walkthrough.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	if s.Expired(m.now()) {
		if err := m.end(ctx, s, ReasonTimeout, fx); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return s, nil
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	now := m.now().UTC()
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(m.ttl)
	if err := m.store.SaveSession(ctx, s); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

func (m *Manager) end(ctx context.Context, s *Session, reason EndReason, fx *effects) error {
	s.Status = reason.status(s.Status)
	if err := m.store.DeleteSession(ctx); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}

	m.logger.Info("session ended",
		slog.String("session_id", s.ID.String()),
		slog.String("reason", string(reason)),
		slog.Int("step_index", s.StepIndex),
		slog.Int("total_steps", s.TotalSteps),
	)

	out := s.Clone()
	fx.add(func(ctx context.Context) {
		m.notifyEnded(ctx, out, reason)
		if m.observer != nil {
			m.observer.EmitSessionEnded(ctx, out, reason)
		}
	})
	return nil
}

func (m *Manager) notifyEnded(ctx context.Context, s *Session, reason EndReason) {
	m.notify(ctx, s, Notice{
		Kind:      NoticeEnded,
		SessionID: s.ID.String(),
		Reason:    reason,
		State:     string(s.State),
		StepIndex: s.StepIndex,
	})
}

// notify sends n to every member tab and the primary.
func (m *Manager) notify(ctx context.Context, s *Session, n Notice) {
	if m.notifier == nil {
		return
	}
	tabs := slices.Clone(s.Tabs.IDs)
	if s.Tabs.Primary != 0 && !slices.Contains(tabs, s.Tabs.Primary) {
		tabs = append(tabs, s.Tabs.Primary)
	}
	for _, tab := range tabs {
		if err := m.notifier.Notify(ctx, tab, n); err != nil {
			m.logger.Warn("notice not delivered",
				slog.String("kind", n.Kind),
				slog.Int("tab_id", tab),
				slog.String("session_id", n.SessionID),
				slog.String("error", err.Error()),
			)
		}
	}
}
