package machine_test

import (
	"errors"
	"testing"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/machine"
)

func mustApply(t *testing.T, s machine.Snapshot, events ...machine.Event) machine.Snapshot {
	t.Helper()
	for _, ev := range events {
		next, err := machine.Apply(s, ev)
		if err != nil {
			t.Fatalf("Apply(%s) from %s: %v", ev.Type(), s.State, err)
		}
		s = next
	}
	return s
}

func started(t *testing.T, total int) machine.Snapshot {
	t.Helper()
	return mustApply(t, machine.New(total), machine.Start{}, machine.TabReady{TabID: 1})
}

func TestLinearCompletion(t *testing.T) {
	t.Parallel()

	s := started(t, 3)
	for i := range 3 {
		if s.StepIndex != i || s.State != machine.StateShowingStep {
			t.Fatalf("step %d: got index=%d state=%s", i, s.StepIndex, s.State)
		}
		s = mustApply(t, s,
			machine.ElementFound{StepIndex: i},
			machine.ActionDetected{StepIndex: i, ActionType: "click"},
			machine.NextStep{},
		)
	}

	if s.State != machine.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", s.State)
	}
	if s.StepIndex != 3 {
		t.Errorf("expected index 3, got %d", s.StepIndex)
	}
	if !s.State.IsTerminal() {
		t.Error("COMPLETED should be terminal")
	}
}

func TestNextStepRequiresDetectedAction(t *testing.T) {
	t.Parallel()

	s := started(t, 3)
	_, err := machine.Apply(s, machine.NextStep{})
	if !errors.Is(err, walkthrough.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	s = mustApply(t, s, machine.ElementFound{StepIndex: 0}, machine.ActionDetected{StepIndex: 0})
	s = mustApply(t, s, machine.NextStep{})
	if s.StepIndex != 1 {
		t.Errorf("expected index 1 after one advance, got %d", s.StepIndex)
	}
	if _, err := machine.Apply(s, machine.NextStep{}); !errors.Is(err, walkthrough.ErrInvalidTransition) {
		t.Errorf("second advance without action should fail, got %v", err)
	}
}

func TestStaleStepIndex(t *testing.T) {
	t.Parallel()

	s := started(t, 3)
	tests := []machine.Event{
		machine.ElementFound{StepIndex: 2},
		machine.ElementNotFound{StepIndex: 1},
		machine.ActionDetected{StepIndex: 1},
		machine.ActionInvalid{StepIndex: 5},
		machine.HealSuccess{StepIndex: 1},
		machine.HealFailed{StepIndex: 1},
	}
	for _, ev := range tests {
		t.Run(string(ev.Type()), func(t *testing.T) {
			got, err := machine.Apply(s, ev)
			if !errors.Is(err, walkthrough.ErrStaleEvent) {
				t.Fatalf("expected ErrStaleEvent, got %v", err)
			}
			if got.State != s.State || got.StepIndex != s.StepIndex {
				t.Errorf("snapshot changed on stale event: %+v", got)
			}
		})
	}
}

func TestTabReadyIsIdempotent(t *testing.T) {
	t.Parallel()

	s := started(t, 2)
	again := mustApply(t, s, machine.TabReady{TabID: 1}, machine.TabReady{TabID: 1})
	if again.State != machine.StateShowingStep || again.StepIndex != 0 {
		t.Errorf("unexpected snapshot after repeated readiness: %+v", again)
	}

	tr := mustApply(t, s, machine.ElementFound{StepIndex: 0}, machine.ActionDetected{StepIndex: 0})
	after, err := machine.Apply(tr, machine.TabReady{TabID: 1})
	if err != nil {
		t.Fatalf("TabReady while TRANSITIONING: %v", err)
	}
	if after.State != machine.StateTransitioning {
		t.Errorf("TabReady must not disturb TRANSITIONING, got %s", after.State)
	}
}

func TestNavigationResumesPendingAdvance(t *testing.T) {
	t.Parallel()

	s := started(t, 3)
	s = mustApply(t, s,
		machine.ElementFound{StepIndex: 0},
		machine.ActionDetected{StepIndex: 0, ActionType: "click"},
		machine.URLChanged{URL: "https://app.test/next"},
	)
	if s.State != machine.StateNavigating {
		t.Fatalf("expected NAVIGATING, got %s", s.State)
	}
	if !s.Navigation.AdvancePending || s.Navigation.ExpectedURL != "https://app.test/next" {
		t.Errorf("unexpected navigation: %+v", s.Navigation)
	}

	s = mustApply(t, s, machine.PageLoaded{URL: "https://app.test/next"})
	if s.State != machine.StateTransitioning {
		t.Fatalf("pending advance lost: state %s", s.State)
	}
	if s.Navigation.InProgress {
		t.Error("navigation should be cleared after load")
	}

	s = mustApply(t, s, machine.NextStep{})
	if s.StepIndex != 1 || s.State != machine.StateShowingStep {
		t.Errorf("expected step 1 SHOWING_STEP, got %d %s", s.StepIndex, s.State)
	}
}

func TestReadyAfterNavigationWithoutAdvance(t *testing.T) {
	t.Parallel()

	s := started(t, 2)
	s = mustApply(t, s, machine.ElementFound{StepIndex: 0}, machine.URLChanged{URL: "/b"})
	if s.Navigation.AdvancePending {
		t.Fatal("no advance should be pending from WAITING_ACTION")
	}
	s = mustApply(t, s, machine.TabReady{TabID: 1})
	if s.State != machine.StateShowingStep || s.StepIndex != 0 {
		t.Errorf("expected step 0 re-rendered, got %d %s", s.StepIndex, s.State)
	}
}

func TestCausesNavigationMarksInProgress(t *testing.T) {
	t.Parallel()

	s := started(t, 2)
	s = mustApply(t, s,
		machine.ElementFound{StepIndex: 0},
		machine.ActionDetected{StepIndex: 0, ActionType: "submit", CausesNavigation: true},
	)
	if !s.Navigation.InProgress {
		t.Error("expected navigation in progress")
	}
	s = mustApply(t, s, machine.NextStep{})
	if s.StepIndex != 1 {
		t.Errorf("expected step 1, got %d", s.StepIndex)
	}
}

func TestHealingRecovery(t *testing.T) {
	t.Parallel()

	s := started(t, 2)
	s = mustApply(t, s, machine.ElementNotFound{StepIndex: 0})
	if s.State != machine.StateHealing {
		t.Fatalf("expected HEALING, got %s", s.State)
	}

	healed := mustApply(t, s, machine.HealSuccess{StepIndex: 0, Selector: "#buy", Confidence: 0.9, AIValidated: true})
	if healed.State != machine.StateWaitingAction {
		t.Errorf("expected WAITING_ACTION, got %s", healed.State)
	}
	h, ok := healed.HealedSteps[0]
	if !ok || h.Selector != "#buy" || h.Confidence != 0.9 || !h.AIValidated {
		t.Errorf("heal not recorded: %+v", healed.HealedSteps)
	}

	failed := mustApply(t, s, machine.HealFailed{StepIndex: 0, Reason: "no candidates"})
	if failed.State != machine.StateError {
		t.Fatalf("expected ERROR, got %s", failed.State)
	}
	if failed.Error == nil || failed.Error.Code != machine.CodeHealingFailed {
		t.Errorf("expected healing_failed error, got %+v", failed.Error)
	}

	retried := mustApply(t, failed, machine.Retry{})
	if retried.State != machine.StateShowingStep || retried.Error != nil {
		t.Errorf("retry should clear the error: %+v", retried)
	}
	if retried.Retries(0) != 1 {
		t.Errorf("expected 1 retry, got %d", retried.Retries(0))
	}

	skipped := mustApply(t, failed, machine.SkipStep{})
	if skipped.StepIndex != 1 || skipped.State != machine.StateShowingStep {
		t.Errorf("skip from ERROR: got %d %s", skipped.StepIndex, skipped.State)
	}
}

func TestInvalidActionCounts(t *testing.T) {
	t.Parallel()

	s := started(t, 2)
	s = mustApply(t, s,
		machine.ElementFound{StepIndex: 0},
		machine.ActionInvalid{StepIndex: 0, Reason: "wrong_value"},
		machine.ActionInvalid{StepIndex: 0, Reason: "wrong_element"},
	)
	if s.State != machine.StateWaitingAction {
		t.Errorf("expected WAITING_ACTION, got %s", s.State)
	}
	if s.InvalidCount(0) != 2 {
		t.Errorf("expected 2 invalid attempts, got %d", s.InvalidCount(0))
	}
	if s.LastInvalidReason != "wrong_element" {
		t.Errorf("unexpected reason %q", s.LastInvalidReason)
	}
}

func TestCursorCommands(t *testing.T) {
	t.Parallel()

	s := started(t, 3)

	if _, err := machine.Apply(s, machine.PrevStep{}); !errors.Is(err, walkthrough.ErrAtFirstStep) {
		t.Errorf("prev at 0: expected ErrAtFirstStep, got %v", err)
	}
	if _, err := machine.Apply(s, machine.JumpTo{Index: 3}); !errors.Is(err, walkthrough.ErrStepOutOfRange) {
		t.Errorf("jump 3: expected ErrStepOutOfRange, got %v", err)
	}
	if _, err := machine.Apply(s, machine.JumpTo{Index: -1}); !errors.Is(err, walkthrough.ErrStepOutOfRange) {
		t.Errorf("jump -1: expected ErrStepOutOfRange, got %v", err)
	}

	s = mustApply(t, s, machine.Retry{}, machine.JumpTo{Index: 2})
	if s.StepIndex != 2 || s.State != machine.StateShowingStep {
		t.Fatalf("jump: got %d %s", s.StepIndex, s.State)
	}
	if _, err := machine.Apply(s, machine.NextStep{Manual: true}); !errors.Is(err, walkthrough.ErrAtLastStep) {
		t.Errorf("manual next at last: expected ErrAtLastStep, got %v", err)
	}

	s = mustApply(t, s, machine.PrevStep{}, machine.PrevStep{})
	if s.StepIndex != 0 {
		t.Errorf("expected index 0, got %d", s.StepIndex)
	}
	if s.Retries(0) != 0 {
		t.Errorf("entering a step should reset its retries, got %d", s.Retries(0))
	}

	s = mustApply(t, s, machine.NextStep{Manual: true})
	if s.StepIndex != 1 {
		t.Errorf("manual next: expected 1, got %d", s.StepIndex)
	}
}

func TestSpaNavigationNeverStrands(t *testing.T) {
	t.Parallel()

	for _, from := range []machine.State{
		machine.StateShowingStep,
		machine.StateWaitingAction,
		machine.StateHealing,
	} {
		t.Run(string(from), func(t *testing.T) {
			s := started(t, 2)
			switch from {
			case machine.StateWaitingAction:
				s = mustApply(t, s, machine.ElementFound{StepIndex: 0})
			case machine.StateHealing:
				s = mustApply(t, s, machine.ElementNotFound{StepIndex: 0})
			}
			s, err := machine.ApplyAll(s, machine.URLChanged{URL: "/spa"}, machine.PageLoaded{URL: "/spa"})
			if err != nil {
				t.Fatalf("ApplyAll: %v", err)
			}
			if s.State == machine.StateNavigating {
				t.Fatal("left in NAVIGATING")
			}
			if s.State != machine.StateShowingStep {
				t.Errorf("expected SHOWING_STEP, got %s", s.State)
			}
		})
	}
}

func TestApplyAllIsAtomic(t *testing.T) {
	t.Parallel()

	s := started(t, 2)
	got, err := machine.ApplyAll(s, machine.ElementFound{StepIndex: 0}, machine.ElementFound{StepIndex: 0})
	if !errors.Is(err, walkthrough.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got.State != machine.StateShowingStep {
		t.Errorf("partial application leaked: %s", got.State)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	s := started(t, 2)
	s = mustApply(t, s, machine.Retry{})
	before := s.Retries(0)

	_ = mustApply(t, s, machine.Retry{})
	if s.Retries(0) != before {
		t.Errorf("input snapshot mutated: %d -> %d", before, s.Retries(0))
	}
}

func TestFailAndTerminalState(t *testing.T) {
	t.Parallel()

	s := started(t, 1)
	failed := mustApply(t, s, machine.Fail{Message: "boom"})
	if failed.State != machine.StateError || failed.Error.Code != machine.CodeFatal {
		t.Errorf("unexpected fail result: %+v", failed)
	}

	done := mustApply(t, s, machine.SkipStep{})
	if done.State != machine.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", done.State)
	}
	for _, ev := range []machine.Event{machine.PrevStep{}, machine.SkipStep{}, machine.Retry{}, machine.Fail{}} {
		if _, err := machine.Apply(done, ev); !errors.Is(err, walkthrough.ErrInvalidTransition) {
			t.Errorf("%s from COMPLETED: expected ErrInvalidTransition, got %v", ev.Type(), err)
		}
	}
	if _, err := machine.Apply(done, machine.TabReady{}); err != nil {
		t.Errorf("TabReady from COMPLETED should be a no-op, got %v", err)
	}
}

func TestStartOnlyFromIdle(t *testing.T) {
	t.Parallel()

	s := started(t, 2)
	if _, err := machine.Apply(s, machine.Start{}); !errors.Is(err, walkthrough.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := machine.Apply(machine.New(2), machine.TabReady{}); !errors.Is(err, walkthrough.ErrInvalidTransition) {
		t.Errorf("TabReady from IDLE: expected ErrInvalidTransition, got %v", err)
	}
}
