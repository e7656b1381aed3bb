package run

import (
	"context"
	"fmt"

	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/executor"
	"github.com/vk/gridflow/internal/graph"
	"github.com/vk/gridflow/internal/model"
	"github.com/zclconf/go-cty/cty"
)

// runCanary trials a sample of the stage's input items before committing to
// the full set. When the sample misses the success threshold the stage
// fails; with rollback enabled none of the partial sample outputs are
// merged into the run context. A passing sample either auto-promotes or
// parks the run awaiting an external promotion signal.
func (c *Coordinator) runCanary(ctx context.Context, working *graph.Graph, st *model.Stage) {
	logger := ctxlog.FromContext(ctx).With("stage", st.ID)
	scope := c.scopeFor(st)
	p := st.Policy.Canary

	itemsExpr, ok := st.Inputs[executor.CanaryItemsInput]
	if !ok {
		c.failStage(ctx, working, st, fmt.Errorf("canary stage has no %q input", executor.CanaryItemsInput), 0)
		return
	}
	val, err := c.evaluator.Evaluate(ctx, itemsExpr, scope)
	if err != nil {
		c.failStage(ctx, working, st, fmt.Errorf("evaluating canary items: %w", err), 0)
		return
	}
	if val.IsNull() || !val.CanIterateElements() {
		c.failStage(ctx, working, st, fmt.Errorf("canary items must be a list, got %s", val.Type().FriendlyName()), 0)
		return
	}
	items := val.AsValueSlice()

	sample := p.SampleSize
	if sample < 0 {
		sample = 0
	}
	if sample > len(items) {
		sample = len(items)
	}

	logger.Info("Canary sampling.", "sample_size", sample, "total_items", len(items))
	sampleRes := c.exec.ExecuteItems(ctx, st, scope, items, 0, sample, c.state)
	succeeded := 0
	for _, r := range sampleRes {
		if r.Err == nil {
			succeeded++
		}
	}
	rate := 1.0
	if sample > 0 {
		rate = float64(succeeded) / float64(sample)
	}

	if rate < p.SuccessThreshold {
		cause := fmt.Errorf("canary success rate %.2f below threshold %.2f (%d/%d sample items succeeded)",
			rate, p.SuccessThreshold, succeeded, sample)
		if !p.RollbackOnFailure && succeeded > 0 {
			c.state.setOutput(st.ID, canaryOutput(len(items), sampleRes, nil))
		}
		c.failStage(ctx, working, st, cause, 0)
		return
	}

	if !p.AutoPromote {
		logger.Info("Canary passed, awaiting promotion.", "success_rate", rate)
		gate := c.state.armGate(st.ID)
		select {
		case <-gate:
			logger.Info("Canary promoted, dispatching remaining items.")
		case <-c.state.cancelCh:
			c.state.transition(st.ID, StatusCanceled, context.Canceled, 0)
			return
		}
	}

	restRes := c.exec.ExecuteItems(ctx, st, scope, items, sample, len(items), c.state)

	failures := 0
	var firstErr error
	for _, r := range append(append([]executor.ItemResult(nil), sampleRes...), restRes...) {
		if r.Err != nil {
			failures++
			if firstErr == nil {
				firstErr = r.Err
			}
		}
	}

	c.state.setOutput(st.ID, canaryOutput(len(items), sampleRes, restRes))
	if failures > 0 {
		c.failStage(ctx, working, st, fmt.Errorf("%d of %d items failed: %w", failures, len(items), firstErr), 0)
		return
	}
	c.state.transition(st.ID, StatusSucceeded, nil, 1)
}

// canaryOutput assembles the stage output object: a tuple of per-item
// outputs, null for items that failed or never ran.
func canaryOutput(total int, batches ...[]executor.ItemResult) cty.Value {
	vals := make([]cty.Value, total)
	for i := range vals {
		vals[i] = cty.NullVal(cty.DynamicPseudoType)
	}
	for _, batch := range batches {
		for _, r := range batch {
			if r.Err == nil && r.Index < total {
				vals[r.Index] = r.Output
			}
		}
	}
	if len(vals) == 0 {
		return cty.ObjectVal(map[string]cty.Value{"items": cty.EmptyTupleVal})
	}
	return cty.ObjectVal(map[string]cty.Value{"items": cty.TupleVal(vals)})
}
