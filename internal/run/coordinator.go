package run

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/eval"
	"github.com/vk/gridflow/internal/executor"
	"github.com/vk/gridflow/internal/graph"
	"github.com/vk/gridflow/internal/model"
	"github.com/vk/gridflow/internal/scheduler"
	"github.com/zclconf/go-cty/cty"
)

// Coordinator drives one pipeline run over the wave list computed by the
// scheduler. It owns the run's State exclusively; the shared graph is never
// mutated; dynamic fork expansion produces a fresh working graph instead.
type Coordinator struct {
	pipeline  *graph.Graph
	exec      *executor.Executor
	evaluator eval.Evaluator
	state     *State
	sem       chan struct{}

	// itemsMu guards the fork bookkeeping written by wave goroutines.
	itemsMu    sync.Mutex
	cloneItems map[string]cty.Value
	pendingFks []forkExpansion
}

type forkExpansion struct {
	fork   *model.Stage
	clones []*model.Stage
}

// NewCoordinator prepares a coordinator for one run. concurrency bounds the
// number of stages in flight at once across all waves of this run; values
// below 1 are treated as 1.
func NewCoordinator(g *graph.Graph, exec *executor.Executor, evaluator eval.Evaluator, state *State, concurrency int) *Coordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Coordinator{
		pipeline:   g,
		exec:       exec,
		evaluator:  evaluator,
		state:      state,
		sem:        make(chan struct{}, concurrency),
		cloneItems: make(map[string]cty.Value),
	}
}

// Run executes the pipeline to a terminal phase. The returned error is nil
// only when every stage that was supposed to run succeeded.
func (c *Coordinator) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	working := c.pipeline
	stages := working.Stages()
	waves, err := scheduler.Waves(working)
	if err != nil {
		// Unreachable after graph validation; fatal, never retried.
		c.state.setPhase(PhaseFailed)
		return err
	}
	logger.Debug("Run starting.", "stages", working.Len(), "waves", len(waves))

	wi := 0
	for wi < len(waves) {
		if c.state.Canceled() {
			c.state.cancelAllPending(context.Canceled)
			break
		}

		toRun := c.applyConditions(ctx, working, waves[wi])
		c.dispatchWave(ctx, working, toRun)

		if expansions := c.takeExpansions(); len(expansions) > 0 {
			stages, working, waves, err = c.reschedule(ctx, stages, expansions)
			if err != nil {
				c.state.setPhase(PhaseFailed)
				return err
			}
			wi = 0
			continue
		}
		wi++
	}

	return c.finish(ctx, working)
}

// applyConditions evaluates every pending stage's condition in the wave and
// returns the stages cleared for dispatch.
func (c *Coordinator) applyConditions(ctx context.Context, working *graph.Graph, wave []string) []*model.Stage {
	var toRun []*model.Stage
	for _, id := range wave {
		if c.state.status(id) != StatusPending {
			continue
		}
		if working.IsCompensation(id) {
			// Runs only through the failure path of the stage it
			// compensates, never as a wave stage.
			continue
		}
		st, ok := working.Stage(id)
		if !ok {
			continue
		}
		if c.conditionPasses(ctx, working, st) {
			toRun = append(toRun, st)
		}
	}
	return toRun
}

// conditionPasses applies the stage's condition, marking the stage according
// to the on-false policy when the condition does not hold.
func (c *Coordinator) conditionPasses(ctx context.Context, working *graph.Graph, st *model.Stage) bool {
	if st.Condition == nil || st.Condition.Expression == nil {
		return true
	}

	val, err := c.evaluator.Evaluate(ctx, st.Condition.Expression, c.scopeFor(st))
	if err == nil {
		var ok bool
		ok, err = eval.Truthy(val)
		if err == nil && ok {
			return true
		}
	}
	if err != nil {
		// An evaluator failure is a stage failure under the normal policy.
		c.failStage(ctx, working, st, &ConditionError{StageID: st.ID, Err: err}, 0)
		return false
	}

	logger := ctxlog.FromContext(ctx).With("stage", st.ID)
	switch st.Condition.Effect() {
	case model.OnFalseFail:
		c.failStage(ctx, working, st, fmt.Errorf("condition evaluated false (on_false=fail)"), 0)
	case model.OnFalseBranch:
		logger.Debug("Condition false, branching.", "target", st.Condition.BranchTarget)
		c.state.markPendingAs(st.ID, StatusSkipped, nil)
		c.skipBranchPath(working, st.ID, st.Condition.BranchTarget)
	default:
		logger.Debug("Condition false, skipping stage.")
		c.state.markPendingAs(st.ID, StatusSkipped, nil)
	}
	return false
}

// dispatchWave runs every cleared stage of a wave concurrently, bounded by
// the run's semaphore, and blocks until all of them are terminal. This
// barrier is what makes a join stage correct: its fan-in set finished in a
// prior wave or this one.
func (c *Coordinator) dispatchWave(ctx context.Context, working *graph.Graph, toRun []*model.Stage) {
	var wg sync.WaitGroup
	for _, st := range toRun {
		if c.state.Canceled() {
			c.state.markPendingAs(st.ID, StatusCanceled, context.Canceled)
			continue
		}
		wg.Add(1)
		go func(st *model.Stage) {
			defer wg.Done()
			c.sem <- struct{}{}
			defer func() { <-c.sem }()
			c.runStage(ctx, working, st)
		}(st)
	}
	wg.Wait()
}

// runStage executes one stage to a terminal status and applies its failure
// policy if needed.
func (c *Coordinator) runStage(ctx context.Context, working *graph.Graph, st *model.Stage) {
	if !c.state.transition(st.ID, StatusRunning, nil, 0) {
		return
	}
	logger := ctxlog.FromContext(ctx).With("stage", st.ID)
	logger.Debug("Stage started.")

	switch {
	case st.Kind == model.KindFork && st.Fork != nil:
		c.runFork(ctx, working, st)
	case st.Policy.Strategy == model.StrategyCanary && st.Policy.Canary != nil:
		c.runCanary(ctx, working, st)
	default:
		var comp *model.Stage
		if st.Policy.OnFailure.Mode == model.Compensate {
			comp, _ = working.Stage(st.Policy.OnFailure.CompensationStage)
		}
		res := c.exec.Execute(ctx, st, comp, c.scopeFor(st), c.state)
		c.settle(ctx, working, st, res)
	}
}

// settle records an executor result against the run state.
func (c *Coordinator) settle(ctx context.Context, working *graph.Graph, st *model.Stage, res executor.Result) {
	logger := ctxlog.FromContext(ctx).With("stage", st.ID)
	if res.Err == nil {
		c.state.setOutput(st.ID, res.Output)
		c.state.transition(st.ID, StatusSucceeded, nil, res.Attempts)
		logger.Debug("Stage succeeded.", "attempts", res.Attempts)
		return
	}

	var canceled *executor.CanceledError
	if errors.As(res.Err, &canceled) {
		c.state.transition(st.ID, StatusCanceled, res.Err, res.Attempts)
		logger.Debug("Stage canceled between attempts.")
		return
	}

	cause := res.Err
	if res.Compensation != nil {
		c.recordCompensation(res.Compensation)
		if res.Compensation.Err != nil {
			cause = fmt.Errorf("%w (compensation %q also failed: %v)", res.Err, res.Compensation.StageID, res.Compensation.Err)
		} else {
			cause = fmt.Errorf("%w (compensated by %q)", res.Err, res.Compensation.StageID)
		}
	}
	c.failStage(ctx, working, st, cause, res.Attempts)
}

// recordCompensation settles the compensation stage's own lifecycle. The
// stage is excluded from wave dispatch, so it is still pending here.
func (c *Coordinator) recordCompensation(res *executor.CompensationResult) {
	c.state.transition(res.StageID, StatusRunning, nil, 0)
	if res.Err != nil {
		c.state.transition(res.StageID, StatusFailed, res.Err, res.Attempts)
		return
	}
	c.state.transition(res.StageID, StatusSucceeded, nil, res.Attempts)
}

// failStage marks a stage failed and applies its failure policy: fail-fast
// cancels every pending stage in the run, continue and compensate skip the
// stage's direct and transitive dependents while independent branches keep
// running.
func (c *Coordinator) failStage(ctx context.Context, working *graph.Graph, st *model.Stage, cause error, attempts int) {
	logger := ctxlog.FromContext(ctx).With("stage", st.ID)
	c.state.transition(st.ID, StatusFailed, cause, attempts)
	logger.Error("Stage failed.", "error", cause)

	if st.Policy.OnFailure.Mode == model.FailFast {
		logger.Info("Fail-fast policy: canceling all pending stages.")
		c.state.cancelAllPending(fmt.Errorf("run aborted: stage %q failed with fail_fast policy", st.ID))
		return
	}

	skipCause := fmt.Errorf("upstream stage %q failed", st.ID)
	for id := range working.Descendants(st.ID) {
		c.state.markPendingAs(id, StatusSkipped, skipCause)
	}
}

// skipBranchPath marks every stage on the direct path from a false
// conditional to its branch target as skipped. The target itself is left
// pending: normal wave scheduling resumes it once its wave arrives.
func (c *Coordinator) skipBranchPath(working *graph.Graph, condID, target string) {
	if target == "" {
		return
	}
	ancestors := working.Ancestors(target)
	for id := range working.Descendants(condID) {
		if id == target {
			continue
		}
		if _, onPath := ancestors[id]; onPath {
			c.state.markPendingAs(id, StatusSkipped, fmt.Errorf("bypassed by branch from %q to %q", condID, target))
		}
	}
}

// scopeFor builds the evaluation scope of a stage, binding the fork item
// for clones created by a dynamic expansion.
func (c *Coordinator) scopeFor(st *model.Stage) eval.Scope {
	scope := c.state.scope()
	if st.ForkItem != nil {
		c.itemsMu.Lock()
		item, ok := c.cloneItems[st.ID]
		c.itemsMu.Unlock()
		if ok {
			scope.Item = &eval.Item{Value: item, Index: st.ForkItem.Index}
		}
	}
	return scope
}

// finish settles the run's terminal phase and summary error. Compensation
// stages that were never needed end skipped.
func (c *Coordinator) finish(ctx context.Context, working *graph.Graph) error {
	logger := ctxlog.FromContext(ctx)
	for _, id := range working.IDs() {
		if working.IsCompensation(id) {
			c.state.markPendingAs(id, StatusSkipped, nil)
		}
	}
	failed := c.state.failedStages()
	switch {
	case len(failed) > 0:
		c.state.setPhase(PhaseFailed)
		logger.Info("Run finished with failures.", "failed_stages", failed)
		return &RunError{Failed: failed}
	case c.state.Canceled():
		c.state.setPhase(PhaseCanceled)
		logger.Info("Run canceled.")
		return context.Canceled
	default:
		c.state.setPhase(PhaseSucceeded)
		logger.Info("Run succeeded.")
		return nil
	}
}
