package print

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func loggedContext(buf *testutil.SafeBuffer) context.Context {
	logger := slog.New(slog.NewTextHandler(buf, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

func TestRun_EchoesInputAndLogsAttributes(t *testing.T) {
	t.Parallel()
	buf := &testutil.SafeBuffer{}
	input := cty.ObjectVal(map[string]cty.Value{
		"message": cty.StringVal("hello"),
		"count":   cty.NumberIntVal(3),
	})

	out, err := Run(loggedContext(buf), input)

	require.NoError(t, err)
	assert.True(t, out.RawEquals(input), "output echoes the input")
	assert.Contains(t, buf.String(), "message=hello")
	assert.Contains(t, buf.String(), "count=3")
}

func TestRun_NoInputs(t *testing.T) {
	t.Parallel()
	buf := &testutil.SafeBuffer{}

	out, err := Run(loggedContext(buf), cty.EmptyObjectVal)

	require.NoError(t, err)
	assert.True(t, out.RawEquals(cty.EmptyObjectVal))
	assert.Contains(t, buf.String(), "no inputs")
}

func TestRenderValue(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		value cty.Value
		want  string
	}{
		{name: "string", value: cty.StringVal("x"), want: "x"},
		{name: "number", value: cty.NumberIntVal(42), want: "42"},
		{name: "bool", value: cty.True, want: "true"},
		{name: "null", value: cty.NullVal(cty.String), want: "(null)"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, renderValue(tc.value))
		})
	}
}
