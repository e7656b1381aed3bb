package run

// Status is the per-run lifecycle state of one stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether the status is final. No transition ever leaves a
// terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped, StatusCanceled:
		return true
	}
	return false
}

// canTransition encodes the stage lifecycle state machine.
//
// Pending may fail directly when a condition evaluates false with an
// on_false=fail policy, or when the condition evaluator itself errors.
// Running may be canceled when a run's cooperative cancel lands between two
// retry attempts.
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusSkipped || to == StatusCanceled || to == StatusFailed
	case StatusRunning:
		return to == StatusSucceeded || to == StatusFailed || to == StatusCanceled
	}
	return false
}

// Phase is the overall state of a run.
type Phase string

const (
	PhaseRunning           Phase = "running"
	PhaseAwaitingPromotion Phase = "awaiting_promotion"
	PhaseSucceeded         Phase = "succeeded"
	PhaseFailed            Phase = "failed"
	PhaseCanceled          Phase = "canceled"
)

// StageStatus is the externally visible snapshot of one stage in a run.
// A terminal state always exposes its cause, never a bare failure.
type StageStatus struct {
	Status   Status
	Cause    string
	Attempts int
}
