package run

import (
	"context"
	"fmt"

	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/expand"
	"github.com/vk/gridflow/internal/graph"
	"github.com/vk/gridflow/internal/model"
	"github.com/vk/gridflow/internal/scheduler"
	"github.com/zclconf/go-cty/cty"
)

// runFork resolves a dynamic fork's item list and stages its clone set for
// the expand-then-reschedule step at the end of the wave. The clone count is
// a per-run decision: the same pipeline version forks differently in runs
// with different item lists.
func (c *Coordinator) runFork(ctx context.Context, working *graph.Graph, st *model.Stage) {
	logger := ctxlog.FromContext(ctx).With("stage", st.ID)
	scope := c.scopeFor(st)

	val, err := c.evaluator.Evaluate(ctx, st.Fork.Items, scope)
	if err != nil {
		c.failStage(ctx, working, st, fmt.Errorf("evaluating fork items: %w", err), 0)
		return
	}
	if val.IsNull() || !val.CanIterateElements() {
		c.failStage(ctx, working, st, fmt.Errorf("fork items must be a list, got %s", val.Type().FriendlyName()), 0)
		return
	}
	items := val.AsValueSlice()

	clones, err := expand.ForkClones(st, len(items))
	if err != nil {
		c.failStage(ctx, working, st, err, 0)
		return
	}
	logger.Debug("Fork expanded.", "items", len(items), "clones", len(clones))

	c.itemsMu.Lock()
	for _, clone := range clones {
		c.cloneItems[clone.ID] = items[clone.ForkItem.Index]
	}
	c.pendingFks = append(c.pendingFks, forkExpansion{fork: st, clones: clones})
	c.itemsMu.Unlock()

	c.state.setOutput(st.ID, cty.ObjectVal(map[string]cty.Value{"items": val}))
	c.state.transition(st.ID, StatusSucceeded, nil, 1)
}

// takeExpansions drains the fork expansions recorded during the last wave.
func (c *Coordinator) takeExpansions() []forkExpansion {
	c.itemsMu.Lock()
	defer c.itemsMu.Unlock()
	out := c.pendingFks
	c.pendingFks = nil
	return out
}

// reschedule merges fork clone sets into a fresh working graph and
// recomputes the wave list for the remainder of the run. The original
// pipeline graph is untouched.
func (c *Coordinator) reschedule(ctx context.Context, stages []*model.Stage, expansions []forkExpansion) ([]*model.Stage, *graph.Graph, [][]string, error) {
	logger := ctxlog.FromContext(ctx)
	var newIDs []string
	for _, ex := range expansions {
		stages = expand.MergeFork(stages, ex.fork, ex.clones)
		for _, clone := range ex.clones {
			newIDs = append(newIDs, clone.ID)
		}
	}

	working, err := graph.Build(stages)
	if err != nil {
		// The clone rewrite produced an invalid graph: an engine bug, not
		// a pipeline-author mistake.
		return nil, nil, nil, fmt.Errorf("internal consistency error: working graph invalid after fork expansion: %w", err)
	}
	c.state.addStages(newIDs)

	waves, err := scheduler.Waves(working)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Debug("Rescheduled after fork expansion.", "new_stages", len(newIDs), "waves", len(waves))
	return stages, working, waves, nil
}
