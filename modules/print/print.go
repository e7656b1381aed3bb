// Package print provides the 'print' task: it logs its resolved inputs and
// echoes them back as its output, so downstream stages and tests can observe
// exactly what was resolved.
package print

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Run is the handler for the 'print' task.
func Run(ctx context.Context, input cty.Value) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)

	if input.IsNull() || !input.Type().IsObjectType() || input.LengthInt() == 0 {
		logger.Info("print: (no inputs)")
		return input, nil
	}

	attrs := input.AsValueMap()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		logger.Info("print", k, renderValue(attrs[k]))
	}
	return input, nil
}

// renderValue formats a cty value for log output without failing on
// non-string types.
func renderValue(v cty.Value) string {
	if v.IsNull() {
		return "(null)"
	}
	if s, err := convert.Convert(v, cty.String); err == nil {
		return s.AsString()
	}
	return fmt.Sprintf("%#v", v)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register("print", Run)
}
