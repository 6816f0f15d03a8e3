package domain

// ProjectionOutcome tags what the projector did with a snapshot.
type ProjectionOutcome string

const (
	ResultCreated ProjectionOutcome = "created"
	ResultApplied ProjectionOutcome = "applied"
	// ResultStale marks an update older than the stored billing period.
	ResultStale ProjectionOutcome = "stale"
	// ResultRejected marks a transition the state machine does not allow.
	ResultRejected ProjectionOutcome = "rejected"
)

type ProjectionResult struct {
	Outcome      ProjectionOutcome
	Subscription *Subscription
	Previous     SubscriptionStatus
	Reason       string
}

// Changed reports whether the stored subscription was written.
func (r ProjectionResult) Changed() bool {
	return r.Outcome == ResultCreated || r.Outcome == ResultApplied
}
