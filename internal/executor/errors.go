package executor

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError reports a stage attempt that exceeded its configured
// deadline. Timeouts are retryable like any other execution failure.
type TimeoutError struct {
	StageID string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("stage %q timed out after %s", e.StageID, e.Timeout)
}

// Unwrap lets callers match the timeout with errors.Is against
// context.DeadlineExceeded.
func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// CanceledError reports a stage that never ran an attempt (or gave up
// between attempts) because its run was canceled.
type CanceledError struct {
	StageID string
}

// Error implements the error interface.
func (e *CanceledError) Error() string {
	return fmt.Sprintf("stage %q canceled before completing", e.StageID)
}

// Unwrap lets callers match cancellation with errors.Is against
// context.Canceled.
func (e *CanceledError) Unwrap() error { return context.Canceled }
