// Package eval defines the expression evaluator boundary the engine
// consumes.
//
// The engine itself never interprets an expression: every stage condition
// and every non-literal input mapping is handed to an Evaluator together
// with the read-only outputs of already-completed stages. The reference
// implementation evaluates HCL expressions over cty values; anything that
// satisfies the interface and behaves as a pure function can replace it.
package eval

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Scope is the read-only context an expression is resolved against. Stage
// outputs become visible here only after the producing stage reached a
// terminal state, and only within the same run.
type Scope struct {
	// Stages maps completed stage ids to their output objects, addressed
	// in expressions as `stage.<id>` or `stage["<id>"]`.
	Stages map[string]cty.Value
	// Run holds the initial inputs of the run, addressed as `run.<key>`.
	Run map[string]cty.Value
	// Item binds the current fork clone's item, addressed as `item` and
	// `index`. Nil outside fork clone scopes.
	Item *Item
}

// Item is the per-clone binding of a dynamic fork.
type Item struct {
	Value cty.Value
	Index int
}

// Evaluator resolves an expression against a scope. Implementations must be
// pure, with no side effects and bounded evaluation time; the executor
// charges any overrun to the calling stage's timeout.
type Evaluator interface {
	Evaluate(ctx context.Context, expr hcl.Expression, scope Scope) (cty.Value, error)
}

// HCL is the reference Evaluator over HCL expressions and cty values.
type HCL struct{}

// NewHCL returns the reference evaluator.
func NewHCL() *HCL { return &HCL{} }

// Evaluate implements Evaluator.
func (h *HCL) Evaluate(_ context.Context, expr hcl.Expression, scope Scope) (cty.Value, error) {
	if expr == nil {
		return cty.NullVal(cty.DynamicPseudoType), fmt.Errorf("nil expression")
	}
	val, diags := expr.Value(scope.evalContext())
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	return val, nil
}

func (s Scope) evalContext() *hcl.EvalContext {
	vars := map[string]cty.Value{
		"stage": objectOrEmpty(s.Stages),
		"run":   objectOrEmpty(s.Run),
	}
	if s.Item != nil {
		vars["item"] = s.Item.Value
		vars["index"] = cty.NumberIntVal(int64(s.Item.Index))
	}
	return &hcl.EvalContext{Variables: vars}
}

func objectOrEmpty(m map[string]cty.Value) cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(m)
}

// Truthy interprets an evaluated condition result as a boolean. Null and
// unknown values are errors rather than silently false.
func Truthy(v cty.Value) (bool, error) {
	if v.IsNull() {
		return false, fmt.Errorf("condition evaluated to null")
	}
	if !v.IsKnown() {
		return false, fmt.Errorf("condition evaluated to an unknown value")
	}
	b, err := convert.Convert(v, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("condition is not a boolean: %w", err)
	}
	return b.True(), nil
}
