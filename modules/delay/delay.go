// Package delay provides the 'delay' task: it sleeps for a configurable
// duration, respecting cancellation and stage timeouts. Useful for pacing
// pipelines and for exercising timeout policies.
package delay

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/gridflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Run is the handler for the 'delay' task. Input: {duration = "250ms"}.
func Run(ctx context.Context, input cty.Value) (cty.Value, error) {
	d, err := durationInput(input)
	if err != nil {
		return cty.NilVal, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return cty.NilVal, ctx.Err()
	}

	return cty.ObjectVal(map[string]cty.Value{
		"slept": cty.StringVal(d.String()),
	}), nil
}

func durationInput(input cty.Value) (time.Duration, error) {
	if input.IsNull() || !input.Type().IsObjectType() || !input.Type().HasAttribute("duration") {
		return 0, fmt.Errorf("delay: missing required input 'duration'")
	}
	raw, err := convert.Convert(input.GetAttr("duration"), cty.String)
	if err != nil || raw.IsNull() {
		return 0, fmt.Errorf("delay: input 'duration' must be a duration string")
	}
	d, err := time.ParseDuration(raw.AsString())
	if err != nil {
		return 0, fmt.Errorf("delay: invalid duration %q: %w", raw.AsString(), err)
	}
	if d < 0 {
		return 0, fmt.Errorf("delay: duration must not be negative")
	}
	return d, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register("delay", Run)
}
