// Package registry maps task types to the Go handlers that execute them.
//
// Modules self-register their handlers at startup, mirroring how pipeline
// definitions reference tasks by type name. The registry is populated once
// during application construction and read-only afterwards.
package registry

import (
	"context"
	"fmt"

	"github.com/vk/gridflow/internal/graph"
	"github.com/vk/gridflow/internal/model"
	"github.com/zclconf/go-cty/cty"
)

// Handler executes one attempt of a task stage. The input is the stage's
// resolved input object; the returned value becomes the stage's output in
// the run context.
type Handler func(ctx context.Context, input cty.Value) (cty.Value, error)

// Module is anything that can contribute handlers to a registry.
type Module interface {
	Register(r *Registry)
}

// Registry holds the handler table for one application instance.
type Registry struct {
	handlers map[string]Handler
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler under the given task type. Registering the same
// type twice is a programmer error and panics.
func (r *Registry) Register(taskType string, h Handler) {
	if _, dup := r.handlers[taskType]; dup {
		panic(fmt.Sprintf("registry: task type %q registered twice", taskType))
	}
	r.handlers[taskType] = h
}

// Lookup returns the handler for the given task type.
func (r *Registry) Lookup(taskType string) (Handler, bool) {
	h, ok := r.handlers[taskType]
	return h, ok
}

// Validate checks that every task stage in the graph names a registered
// handler, so an unknown task type fails at build time rather than mid-run.
func (r *Registry) Validate(g *graph.Graph) error {
	for _, s := range g.Stages() {
		if s.Kind != model.KindTask {
			continue
		}
		if s.Task == "" {
			return fmt.Errorf("task stage %q has no task type", s.ID)
		}
		if _, ok := r.handlers[s.Task]; !ok {
			return fmt.Errorf("task stage %q references unregistered task type %q", s.ID, s.Task)
		}
	}
	return nil
}
