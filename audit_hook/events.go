package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionSessionStarted = "session.started"
	ActionStepChanged    = "session.step_changed"
	ActionSessionEnded   = "session.ended"
)

// CategorySession groups every action this extension emits.
const CategorySession = "walkthrough.session"

// ResourceSession is the Resource field of every audit event.
const ResourceSession = "session"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionSessionStarted,
		ActionStepChanged,
		ActionSessionEnded,
	}
}
