// Package env_vars provides the 'env_vars' task: it snapshots the process
// environment into the run context so later stages can reference variables
// through expressions.
package env_vars

import (
	"context"
	"os"
	"strings"

	"github.com/vk/gridflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Run is the handler for the 'env_vars' task. Output shape: {all = {NAME = value, ...}}.
func Run(ctx context.Context, input cty.Value) (cty.Value, error) {
	envMap := make(map[string]cty.Value)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 {
			envMap[pair[0]] = cty.StringVal(pair[1])
		}
	}

	all := cty.EmptyObjectVal
	if len(envMap) > 0 {
		all = cty.ObjectVal(envMap)
	}
	return cty.ObjectVal(map[string]cty.Value{"all": all}), nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register("env_vars", Run)
}
