package model

import (
	"time"
)

// Strategy selects how a stage's work is dispatched.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
	StrategyCanary     Strategy = "canary"
)

// BackoffKind selects the delay curve between retry attempts.
type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffLinear      BackoffKind = "linear"
)

// FailureMode selects what happens to the rest of the run when a stage
// exhausts its retries.
type FailureMode string

const (
	// FailFast cancels every still-pending stage across the whole run.
	FailFast FailureMode = "fail_fast"
	// Continue skips only the failed stage's direct and transitive
	// dependents; independent branches keep running.
	Continue FailureMode = "continue"
	// Compensate runs a designated compensation stage once, then behaves
	// like Continue for the failed stage's dependents.
	Compensate FailureMode = "compensate"
)

// RetryPolicy bounds how often a failing stage is re-attempted and how long
// the engine waits between attempts.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int
	// Backoff selects the delay curve. Defaults to exponential.
	Backoff BackoffKind
	// InitialDelay seeds the delay curve.
	InitialDelay time.Duration
}

// Attempts returns the effective attempt budget.
func (r RetryPolicy) Attempts() int {
	if r.MaxAttempts < 1 {
		return 1
	}
	return r.MaxAttempts
}

// Delay returns the wait before re-attempting after the given zero-based
// failed attempt: initial*2^attempt for exponential, initial*(attempt+1)
// for linear.
func (r RetryPolicy) Delay(attempt int) time.Duration {
	if r.InitialDelay <= 0 {
		return 0
	}
	switch r.Backoff {
	case BackoffLinear:
		return r.InitialDelay * time.Duration(attempt+1)
	default:
		return r.InitialDelay << uint(attempt)
	}
}

// FailurePolicy couples a failure mode with its compensation target.
type FailurePolicy struct {
	Mode FailureMode
	// CompensationStage names the stage run to undo the effects of this
	// stage. Only meaningful when Mode is Compensate; must exist in the
	// same graph and must not depend on the stage it compensates.
	CompensationStage string
}

// CanaryPolicy governs a stage that trials a sample of its input items
// before committing to the full set.
type CanaryPolicy struct {
	// SampleSize is the number of items dispatched in the trial.
	SampleSize int
	// SuccessThreshold is the fraction of sample items (0..1] that must
	// succeed for the canary to pass.
	SuccessThreshold float64
	// AutoPromote dispatches the remaining items immediately after the
	// threshold is met. When false, the run pauses awaiting an external
	// promotion signal.
	AutoPromote bool
	// RollbackOnFailure discards the partial sample outputs when the
	// threshold is not met, so no canary results leak into the run context.
	RollbackOnFailure bool
}

// ExecutionPolicy is the complete execution configuration of one stage.
type ExecutionPolicy struct {
	// Strategy selects plain or canary dispatch.
	Strategy Strategy
	// Timeout is the hard deadline for a single attempt. Exceeding it is a
	// failure regardless of partial progress. Zero disables the deadline.
	Timeout time.Duration
	// Retry bounds re-attempts of a failing stage.
	Retry RetryPolicy
	// OnFailure is applied the moment the stage fails after exhausting
	// its retries.
	OnFailure FailurePolicy
	// Canary holds the canary parameters when Strategy is StrategyCanary.
	Canary *CanaryPolicy
}
