// Package config defines the format-agnostic pipeline definition model and
// the loader interface format-specific parsers implement.
//
// The engine never reads definition files itself: a Loader translates HCL
// or YAML sources into the unified Model, and everything downstream (the
// expander, the graph builder, the scheduler) works on that model alone.
package config

import (
	"context"

	"github.com/vk/gridflow/internal/model"
)

// Pipeline carries run-wide settings from the definition file.
type Pipeline struct {
	// Name identifies the pipeline. Informational only.
	Name string
	// Concurrency bounds the number of stages in flight at once per run.
	// Zero defers to the engine default.
	Concurrency int
}

// Model is the unified representation of one pipeline definition,
// whichever format it was loaded from.
type Model struct {
	Pipeline Pipeline
	Stages   []*model.Stage
}

// Loader is the interface for a format-specific definition loader.
type Loader interface {
	// Load reads pipeline definitions from the given paths (files or
	// directories) and translates them into the unified model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
