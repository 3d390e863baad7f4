// Package audithook is a walkthrough extension that bridges session
// lifecycle events to an audit trail backend.
//
// Every session start, step move, and session end emits a structured audit
// event through the [Recorder] interface. Sessions that end with an error
// are recorded as failures with warning severity.
//
// # Usage
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    logger.InfoContext(ctx, "audit", "action", evt.Action, "session", evt.ResourceID)
//	    return nil
//	}))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(audithook.ActionSessionEnded),
//	)
package audithook
