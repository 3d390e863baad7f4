// Package ext defines the extension system for the walkthrough coordinator.
//
// Extensions are notified of session lifecycle events and can react to
// them: pushing notices to tabs, cancelling pending advances, recording
// metrics. Each lifecycle hook is a separate interface so extensions opt
// in only to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnStepChanged(ctx context.Context, s *session.Session, from int) error {
//	    log.Printf("session %s moved %d -> %d", s.ID, from, s.StepIndex)
//	    return nil
//	}
//
// # Session Lifecycle Hooks
//
//   - [SessionStarted] — a walkthrough session was created
//   - [StepChanged] — the step cursor moved
//   - [SessionEnded] — the session record was erased
//
// # Other Hooks
//
//   - [Shutdown] — the coordinator is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. It implements
// session.Observer, so it plugs straight into session.WithObserver.
package ext
