package eval

import (
	"context"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func parseExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	require.False(t, diags.HasErrors(), "parse %q: %v", src, diags)
	return expr
}

func TestHCL_Evaluate(t *testing.T) {
	t.Parallel()
	evaluator := NewHCL()
	scope := Scope{
		Stages: map[string]cty.Value{
			"extract": cty.ObjectVal(map[string]cty.Value{
				"rows": cty.NumberIntVal(42),
			}),
		},
		Run: map[string]cty.Value{
			"env": cty.StringVal("staging"),
		},
	}

	testCases := []struct {
		name     string
		expr     string
		expected cty.Value
	}{
		{name: "stage output reference", expr: "stage.extract.rows", expected: cty.NumberIntVal(42)},
		{name: "run input reference", expr: "run.env", expected: cty.StringVal("staging")},
		{name: "comparison", expr: "stage.extract.rows > 10", expected: cty.True},
		{name: "string literal", expr: `"plain"`, expected: cty.StringVal("plain")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			val, err := evaluator.Evaluate(context.Background(), parseExpr(t, tc.expr), scope)
			require.NoError(t, err)
			assert.True(t, tc.expected.RawEquals(val), "got %#v", val)
		})
	}
}

func TestHCL_Evaluate_ItemBindings(t *testing.T) {
	t.Parallel()
	evaluator := NewHCL()
	scope := Scope{
		Item: &Item{Value: cty.StringVal("eu-west"), Index: 3},
	}

	val, err := evaluator.Evaluate(context.Background(), parseExpr(t, "item"), scope)
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("eu-west"), val)

	val, err = evaluator.Evaluate(context.Background(), parseExpr(t, "index"), scope)
	require.NoError(t, err)
	assert.True(t, cty.NumberIntVal(3).RawEquals(val))
}

func TestHCL_Evaluate_Errors(t *testing.T) {
	t.Parallel()
	evaluator := NewHCL()

	_, err := evaluator.Evaluate(context.Background(), nil, Scope{})
	assert.Error(t, err)

	// Unknown stage reference is an evaluation error, not a silent null.
	_, err = evaluator.Evaluate(context.Background(), parseExpr(t, "stage.ghost.out"), Scope{})
	assert.Error(t, err)

	// `item` is unbound outside fork clone scopes.
	_, err = evaluator.Evaluate(context.Background(), parseExpr(t, "item"), Scope{})
	assert.Error(t, err)
}

func TestTruthy(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		val      cty.Value
		expected bool
		wantErr  bool
	}{
		{name: "true", val: cty.True, expected: true},
		{name: "false", val: cty.False, expected: false},
		{name: "bool-convertible string", val: cty.StringVal("true"), expected: true},
		{name: "null is an error", val: cty.NullVal(cty.Bool), wantErr: true},
		{name: "unknown is an error", val: cty.UnknownVal(cty.Bool), wantErr: true},
		{name: "non-boolean is an error", val: cty.NumberIntVal(7), wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Truthy(tc.val)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}
