package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridflow/internal/eval"
	"github.com/vk/gridflow/internal/model"
	"github.com/vk/gridflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

func parseExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	require.False(t, diags.HasErrors(), "parse %q: %v", src, diags)
	return expr
}

// newTestExecutor returns an executor over the given handlers with retry
// sleeps recorded instead of slept.
func newTestExecutor(handlers map[string]registry.Handler) (*Executor, *[]time.Duration) {
	reg := registry.New()
	for name, h := range handlers {
		reg.Register(name, h)
	}
	e := New(eval.NewHCL(), reg)
	var delays []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return e, &delays
}

func taskStage(id, task string) *model.Stage {
	return &model.Stage{ID: id, Kind: model.KindTask, Task: task}
}

func TestExecute_SucceedsFirstAttempt(t *testing.T) {
	e, delays := newTestExecutor(map[string]registry.Handler{
		"ok": func(context.Context, cty.Value) (cty.Value, error) {
			return cty.ObjectVal(map[string]cty.Value{"done": cty.True}), nil
		},
	})

	res := e.Execute(context.Background(), taskStage("a", "ok"), nil, eval.Scope{}, NeverCanceled{})
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, *delays)
	assert.Equal(t, cty.True, res.Output.GetAttr("done"))
}

func TestExecute_RetriesWithExponentialBackoff(t *testing.T) {
	calls := 0
	e, delays := newTestExecutor(map[string]registry.Handler{
		"flaky": func(context.Context, cty.Value) (cty.Value, error) {
			calls++
			return cty.NilVal, fmt.Errorf("transient failure %d", calls)
		},
	})

	st := taskStage("a", "flaky")
	st.Policy.Retry = model.RetryPolicy{
		MaxAttempts:  3,
		Backoff:      model.BackoffExponential,
		InitialDelay: 5 * time.Second,
	}

	res := e.Execute(context.Background(), st, nil, eval.Scope{}, NeverCanceled{})

	require.Error(t, res.Err)
	assert.Equal(t, 3, calls, "MaxAttempts bounds the total attempt count")
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, *delays)
	assert.Contains(t, res.Err.Error(), "after 3 attempts")
}

func TestExecute_RetrySucceedsMidway(t *testing.T) {
	calls := 0
	e, _ := newTestExecutor(map[string]registry.Handler{
		"flaky": func(context.Context, cty.Value) (cty.Value, error) {
			calls++
			if calls < 2 {
				return cty.NilVal, errors.New("not yet")
			}
			return cty.EmptyObjectVal, nil
		},
	})

	st := taskStage("a", "flaky")
	st.Policy.Retry = model.RetryPolicy{MaxAttempts: 5}

	res := e.Execute(context.Background(), st, nil, eval.Scope{}, NeverCanceled{})
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Attempts)
}

func TestExecute_TimeoutIsRetryableFailure(t *testing.T) {
	e, _ := newTestExecutor(map[string]registry.Handler{
		"slow": func(ctx context.Context, _ cty.Value) (cty.Value, error) {
			select {
			case <-time.After(5 * time.Second):
				return cty.EmptyObjectVal, nil
			case <-ctx.Done():
				return cty.NilVal, ctx.Err()
			}
		},
	})

	st := taskStage("a", "slow")
	st.Policy.Timeout = 20 * time.Millisecond

	res := e.Execute(context.Background(), st, nil, eval.Scope{}, NeverCanceled{})
	require.Error(t, res.Err)

	var timeout *TimeoutError
	require.ErrorAs(t, res.Err, &timeout)
	assert.Equal(t, "a", timeout.StageID)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestExecute_CompensationRunsOnceAfterExhaustedRetries(t *testing.T) {
	compCalls := 0
	e, _ := newTestExecutor(map[string]registry.Handler{
		"doomed": func(context.Context, cty.Value) (cty.Value, error) {
			return cty.NilVal, errors.New("permanent")
		},
		"undo": func(context.Context, cty.Value) (cty.Value, error) {
			compCalls++
			return cty.EmptyObjectVal, nil
		},
	})

	st := taskStage("a", "doomed")
	st.Policy.Retry = model.RetryPolicy{MaxAttempts: 2}
	st.Policy.OnFailure = model.FailurePolicy{Mode: model.Compensate, CompensationStage: "cleanup"}
	comp := taskStage("cleanup", "undo")

	res := e.Execute(context.Background(), st, comp, eval.Scope{}, NeverCanceled{})

	// The original stage stays failed even though the compensation succeeded.
	require.Error(t, res.Err)
	assert.Equal(t, 1, compCalls)
	require.NotNil(t, res.Compensation)
	assert.Equal(t, "cleanup", res.Compensation.StageID)
	assert.NoError(t, res.Compensation.Err)
}

func TestExecute_NoCompensationOnSuccess(t *testing.T) {
	compCalls := 0
	e, _ := newTestExecutor(map[string]registry.Handler{
		"ok": func(context.Context, cty.Value) (cty.Value, error) {
			return cty.EmptyObjectVal, nil
		},
		"undo": func(context.Context, cty.Value) (cty.Value, error) {
			compCalls++
			return cty.EmptyObjectVal, nil
		},
	})

	res := e.Execute(context.Background(), taskStage("a", "ok"), taskStage("cleanup", "undo"), eval.Scope{}, NeverCanceled{})
	require.NoError(t, res.Err)
	assert.Zero(t, compCalls)
	assert.Nil(t, res.Compensation)
}

type canceledToken struct{}

func (canceledToken) Canceled() bool { return true }

func TestExecute_CanceledTokenStopsBeforeFirstAttempt(t *testing.T) {
	calls := 0
	e, _ := newTestExecutor(map[string]registry.Handler{
		"work": func(context.Context, cty.Value) (cty.Value, error) {
			calls++
			return cty.EmptyObjectVal, nil
		},
	})

	res := e.Execute(context.Background(), taskStage("a", "work"), nil, eval.Scope{}, canceledToken{})

	require.Error(t, res.Err)
	var canceled *CanceledError
	require.ErrorAs(t, res.Err, &canceled)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, calls)
}

func TestExecute_StructuralKindsSucceedWithoutHandler(t *testing.T) {
	e, _ := newTestExecutor(nil)
	for _, kind := range []model.StageKind{model.KindJoin, model.KindConditional, model.KindFork} {
		res := e.Execute(context.Background(), &model.Stage{ID: "s", Kind: kind}, nil, eval.Scope{}, NeverCanceled{})
		require.NoError(t, res.Err, "kind %s", kind)
		assert.Equal(t, cty.EmptyObjectVal, res.Output)
	}
}

func TestExecute_UnknownTaskType(t *testing.T) {
	e, _ := newTestExecutor(nil)
	res := e.Execute(context.Background(), taskStage("a", "ghost"), nil, eval.Scope{}, NeverCanceled{})
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "ghost")
}

func TestResolveInputs(t *testing.T) {
	e, _ := newTestExecutor(nil)
	scope := eval.Scope{
		Stages: map[string]cty.Value{
			"up": cty.ObjectVal(map[string]cty.Value{"count": cty.NumberIntVal(3)}),
		},
	}
	st := taskStage("a", "noop")
	st.Inputs = map[string]hcl.Expression{
		"n":     parseExpr(t, "stage.up.count"),
		"label": parseExpr(t, `"fixed"`),
	}

	val, err := e.ResolveInputs(context.Background(), st, scope)
	require.NoError(t, err)
	assert.True(t, cty.NumberIntVal(3).RawEquals(val.GetAttr("n")))
	assert.Equal(t, cty.StringVal("fixed"), val.GetAttr("label"))

	// A dangling reference surfaces as an input resolution error.
	st.Inputs["bad"] = parseExpr(t, "stage.ghost.x")
	_, err = e.ResolveInputs(context.Background(), st, scope)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bad"`)
}

func TestExecuteItems_BindsItemAndIndex(t *testing.T) {
	var seen []string
	e, _ := newTestExecutor(map[string]registry.Handler{
		"collect": func(_ context.Context, input cty.Value) (cty.Value, error) {
			seen = append(seen, input.GetAttr("region").AsString())
			return input, nil
		},
	})

	st := taskStage("deploy", "collect")
	st.Inputs = map[string]hcl.Expression{"region": parseExpr(t, "item")}

	items := []cty.Value{cty.StringVal("eu"), cty.StringVal("us"), cty.StringVal("ap")}
	results := e.ExecuteItems(context.Background(), st, eval.Scope{}, items, 0, 2, NeverCanceled{})

	require.Len(t, results, 2)
	assert.Equal(t, []string{"eu", "us"}, seen, "items run sequentially in order")
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 1, results[1].Index)

	// The remainder picks up where the sample stopped.
	rest := e.ExecuteItems(context.Background(), st, eval.Scope{}, items, 2, len(items), NeverCanceled{})
	require.Len(t, rest, 1)
	assert.Equal(t, 2, rest[0].Index)
	assert.Equal(t, []string{"eu", "us", "ap"}, seen)
}
