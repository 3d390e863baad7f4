package advance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/walkthrough/id"
	"github.com/xraph/walkthrough/machine"
)

// Key identifies the session position an advance was scheduled for.
type Key struct {
	SessionID string
	StepIndex int
	State     machine.State
}

// Func runs when a task fires.
type Func func(ctx context.Context, key Key)

// Task is a pending advance.
type Task struct {
	ID    id.TaskID
	Key   Key
	Delay time.Duration
	DueAt time.Time

	timer *time.Timer
}

// Scheduler runs delayed advances, at most one per session.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*Task
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		pending: make(map[string]*Task),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Schedule arranges for fn to run after delay and replaces any task
// pending for the same session. It returns nil once the scheduler is
// closed.
func (s *Scheduler) Schedule(key Key, delay time.Duration, fn Func) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.cancelLocked(key.SessionID)

	t := &Task{
		ID:    id.NewTaskID(),
		Key:   key,
		Delay: delay,
		DueAt: time.Now().Add(delay),
	}
	s.pending[key.SessionID] = t
	s.wg.Add(1)
	t.timer = time.AfterFunc(delay, func() { s.fire(t, fn) })

	s.logger.Debug("advance scheduled",
		slog.String("task_id", t.ID.String()),
		slog.String("session_id", key.SessionID),
		slog.Int("step_index", key.StepIndex),
		slog.Duration("delay", delay),
	)
	return t
}

func (s *Scheduler) fire(t *Task, fn Func) {
	defer s.wg.Done()

	s.mu.Lock()
	if s.pending[t.Key.SessionID] != t {
		s.mu.Unlock()
		return
	}
	delete(s.pending, t.Key.SessionID)
	s.mu.Unlock()

	fn(s.ctx, t.Key)
}

// Cancel drops the task pending for sessionID. It reports whether one was
// pending.
func (s *Scheduler) Cancel(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(sessionID)
}

// CancelStep drops the task pending for sessionID only when it was
// scheduled for step. It reports whether one was dropped.
func (s *Scheduler) CancelStep(sessionID string, step int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pending[sessionID]
	if !ok || t.Key.StepIndex != step {
		return false
	}
	return s.cancelLocked(sessionID)
}

func (s *Scheduler) cancelLocked(sessionID string) bool {
	t, ok := s.pending[sessionID]
	if !ok {
		return false
	}
	delete(s.pending, sessionID)
	if t.timer.Stop() {
		s.wg.Done()
	}
	s.logger.Debug("advance cancelled",
		slog.String("task_id", t.ID.String()),
		slog.String("session_id", sessionID),
	)
	return true
}

// CancelAll drops every pending task.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid := range s.pending {
		s.cancelLocked(sid)
	}
}

// Pending returns the task pending for sessionID.
func (s *Scheduler) Pending(sessionID string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pending[sessionID]
	if !ok {
		return Task{}, false
	}
	return Task{ID: t.ID, Key: t.Key, Delay: t.Delay, DueAt: t.DueAt}, true
}

// Close cancels pending tasks and waits for running ones, or for ctx.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for sid := range s.pending {
		s.cancelLocked(sid)
	}
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
