package run

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRun is returned for operations on a run id the engine has never
// seen.
var ErrUnknownRun = errors.New("unknown run")

// ConditionError wraps an evaluator failure while resolving a stage
// condition. It is treated as a stage failure subject to the stage's normal
// failure policy.
type ConditionError struct {
	StageID string
	Err     error
}

// Error implements the error interface.
func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition of stage %q failed to evaluate: %v", e.StageID, e.Err)
}

// Unwrap exposes the underlying evaluator error.
func (e *ConditionError) Unwrap() error { return e.Err }

// RunError summarizes a run that ended failed. Per-stage causes remain
// available through the status snapshot; this error only names the stages.
type RunError struct {
	Failed []string
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("run failed: %d stages failed (%s)", len(e.Failed), strings.Join(e.Failed, ", "))
}
