package models

const (
	// StatusPending indicates the item has been created and is waiting to be dispatched.
	StatusPending Status = "pending"
	// StatusProcessing indicates the item has been handed to a worker.
	StatusProcessing Status = "processing"
	// StatusComplete indicates the item has successfully finished being processed.
	StatusComplete Status = "complete"
	// StatusFailed indicates the item has failed during processing.
	StatusFailed Status = "failed"
)

var statuses = map[string]Status{
	string(StatusPending):    StatusPending,
	string(StatusProcessing): StatusProcessing,
	string(StatusComplete):   StatusComplete,
	string(StatusFailed):     StatusFailed,
}

// Status reflects where a job or step is in its lifecycle. Jobs and steps
// share the same four-value state machine.
type Status string

func (s Status) Valid() bool {
	_, ok := statuses[string(s)]
	return ok
}

// HasFinished returns true if the status is terminal, either complete or failed.
func (s Status) HasFinished() bool {
	return s == StatusComplete || s == StatusFailed
}

// CanTransitionTo returns true if moving from the current status to next is a
// legal lifecycle transition. Terminal statuses are sticky; only an explicit
// retry resets a step back to pending, which bypasses this check.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusComplete || next == StatusFailed
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}
