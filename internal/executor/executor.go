// Package executor runs a single stage: it resolves inputs, enforces the
// per-attempt timeout, retries with the configured backoff, and triggers the
// compensation stage when the failure policy asks for one.
//
// The executor never cancels a running attempt from outside: cancellation is
// cooperative and checked at attempt boundaries, so a stage either finishes
// or hits its own timeout, and an attempt is never torn down halfway through
// its side effects.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/eval"
	"github.com/vk/gridflow/internal/model"
	"github.com/vk/gridflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// CancelToken is the shared read-only cancellation flag of a run. The
// executor checks it at attempt boundaries only.
type CancelToken interface {
	Canceled() bool
}

// NeverCanceled is a CancelToken for callers outside a run.
type NeverCanceled struct{}

// Canceled implements CancelToken.
func (NeverCanceled) Canceled() bool { return false }

// Result is the terminal outcome of executing one stage. Err is nil exactly
// when the stage succeeded; a non-nil Err always carries the cause.
type Result struct {
	Output   cty.Value
	Err      error
	Attempts int
	// Compensation records the compensation stage's own outcome when one
	// was triggered. The original stage is still reported failed.
	Compensation *CompensationResult
}

// CompensationResult is the outcome of a compensation stage run.
type CompensationResult struct {
	StageID  string
	Err      error
	Attempts int
}

// Executor dispatches stage attempts against registered task handlers.
type Executor struct {
	evaluator eval.Evaluator
	registry  *registry.Registry
	// sleep waits between retry attempts; injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns an Executor using the given evaluator and handler registry.
func New(evaluator eval.Evaluator, reg *registry.Registry) *Executor {
	return &Executor{
		evaluator: evaluator,
		registry:  reg,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs the stage to a terminal outcome. comp is the stage's
// compensation stage, already resolved by the caller; it may be nil. When
// the stage exhausts its retries and comp is non-nil, the compensation runs
// exactly once with its own independent retry policy and never triggers a
// further compensation.
func (e *Executor) Execute(ctx context.Context, stage *model.Stage, comp *model.Stage, scope eval.Scope, token CancelToken) Result {
	res := e.execute(ctx, stage, scope, token)
	if res.Err == nil || comp == nil {
		return res
	}

	logger := ctxlog.FromContext(ctx).With("stage", stage.ID)
	logger.Info("Running compensation stage.", "compensation", comp.ID)
	compRes := e.execute(ctx, comp, scope, token)
	res.Compensation = &CompensationResult{
		StageID:  comp.ID,
		Err:      compRes.Err,
		Attempts: compRes.Attempts,
	}
	if compRes.Err != nil {
		logger.Error("Compensation stage failed.", "compensation", comp.ID, "error", compRes.Err)
	}
	return res
}

func (e *Executor) execute(ctx context.Context, stage *model.Stage, scope eval.Scope, token CancelToken) Result {
	logger := ctxlog.FromContext(ctx).With("stage", stage.ID)

	input, err := e.ResolveInputs(ctx, stage, scope)
	if err != nil {
		return Result{Err: fmt.Errorf("resolving inputs for stage %q: %w", stage.ID, err)}
	}

	retry := stage.Policy.Retry
	var lastErr error
	for attempt := 0; attempt < retry.Attempts(); attempt++ {
		if token.Canceled() {
			return Result{Err: &CanceledError{StageID: stage.ID}, Attempts: attempt}
		}
		if attempt > 0 {
			delay := retry.Delay(attempt - 1)
			logger.Debug("Waiting before retry.", "attempt", attempt+1, "delay", delay)
			if err := e.sleep(ctx, delay); err != nil {
				return Result{Err: &CanceledError{StageID: stage.ID}, Attempts: attempt}
			}
		}

		output, err := e.attempt(ctx, stage, input)
		if err == nil {
			return Result{Output: output, Attempts: attempt + 1}
		}
		lastErr = err
		logger.Warn("Stage attempt failed.", "attempt", attempt+1, "max_attempts", retry.Attempts(), "error", err)
	}

	return Result{
		Err:      fmt.Errorf("stage %q failed after %d attempts: %w", stage.ID, retry.Attempts(), lastErr),
		Attempts: retry.Attempts(),
	}
}

// attempt runs a single attempt under the stage's timeout. A timeout is a
// failure like any other, regardless of partial progress.
func (e *Executor) attempt(ctx context.Context, stage *model.Stage, input cty.Value) (cty.Value, error) {
	if stage.Kind != model.KindTask {
		// Fork, join, and conditional stages are structural: reaching this
		// point means their scheduling work is already done.
		return cty.EmptyObjectVal, nil
	}

	handler, ok := e.registry.Lookup(stage.Task)
	if !ok {
		return cty.NilVal, fmt.Errorf("no handler registered for task type %q", stage.Task)
	}

	attemptCtx := ctx
	if stage.Policy.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, stage.Policy.Timeout)
		defer cancel()
	}

	type outcome struct {
		output cty.Value
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := handler(attemptCtx, input)
		done <- outcome{out, err}
	}()

	select {
	case o := <-done:
		return o.output, o.err
	case <-attemptCtx.Done():
		if stage.Policy.Timeout > 0 && ctx.Err() == nil {
			return cty.NilVal, &TimeoutError{StageID: stage.ID, Timeout: stage.Policy.Timeout}
		}
		return cty.NilVal, attemptCtx.Err()
	}
}

// ResolveInputs evaluates the stage's input mappings into a single object
// value passed to the handler.
func (e *Executor) ResolveInputs(ctx context.Context, stage *model.Stage, scope eval.Scope) (cty.Value, error) {
	if len(stage.Inputs) == 0 {
		return cty.EmptyObjectVal, nil
	}
	attrs := make(map[string]cty.Value, len(stage.Inputs))
	for key, expr := range stage.Inputs {
		val, err := e.evaluator.Evaluate(ctx, expr, scope)
		if err != nil {
			return cty.NilVal, fmt.Errorf("input %q: %w", key, err)
		}
		attrs[key] = val
	}
	return cty.ObjectVal(attrs), nil
}
