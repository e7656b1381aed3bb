package executor

import (
	"context"

	"github.com/vk/gridflow/internal/eval"
	"github.com/vk/gridflow/internal/model"
	"github.com/zclconf/go-cty/cty"
)

// CanaryItemsInput is the input key a canary stage's item list is read from.
const CanaryItemsInput = "items"

// ItemResult is the outcome of executing one item of a canary stage.
type ItemResult struct {
	Index  int
	Output cty.Value
	Err    error
}

// ExecuteItems runs the stage once per item in items[start:end], binding
// each item into the evaluation scope as `item`/`index`. Every item gets the
// stage's full retry budget; items run sequentially so a canary sample
// observes a deterministic order.
func (e *Executor) ExecuteItems(ctx context.Context, stage *model.Stage, scope eval.Scope, items []cty.Value, start, end int, token CancelToken) []ItemResult {
	if end > len(items) {
		end = len(items)
	}
	if start < 0 {
		start = 0
	}
	results := make([]ItemResult, 0, end-start)
	for i := start; i < end; i++ {
		itemScope := scope
		itemScope.Item = &eval.Item{Value: items[i], Index: i}
		res := e.execute(ctx, stage, itemScope, token)
		results = append(results, ItemResult{Index: i, Output: res.Output, Err: res.Err})
	}
	return results
}
