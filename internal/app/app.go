package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/gridflow/internal/config"
	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/eval"
	"github.com/vk/gridflow/internal/expand"
	"github.com/vk/gridflow/internal/graph"
	"github.com/vk/gridflow/internal/registry"
	"github.com/vk/gridflow/internal/run"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	cfg      *Config
	registry *registry.Registry
	pipeline config.Pipeline
	graph    *graph.Graph
	engine   *run.Engine
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Startup errors are programmer or configuration errors, so it panics on them.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	// Load all definitions into the format-agnostic model first.
	cfgModel, err := loader.Load(ctx, cfg.PipelinePath)
	if err != nil {
		panic(fmt.Errorf("failed to load pipeline definitions: %w", err))
	}
	logger.Debug("Pipeline definitions loaded into unified model.", "stages", len(cfgModel.Stages))

	// Flatten subworkflows before graph validation: the graph never sees
	// composite stages.
	stages, err := expand.Pipeline(cfgModel.Stages)
	if err != nil {
		panic(fmt.Errorf("failed to expand pipeline: %w", err))
	}

	g, err := graph.Build(stages)
	if err != nil {
		panic(fmt.Errorf("failed to build stage graph: %w", err))
	}
	logger.Debug("Stage graph built.", "stage_count", len(g.IDs()))

	// Create and populate the registry with Go handlers.
	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	// Validate that every task stage resolves to a handler.
	if err := reg.Validate(g); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		cfg:      cfg,
		registry: reg,
		pipeline: cfgModel.Pipeline,
		graph:    g,
		engine:   run.NewEngine(reg, eval.NewHCL()),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Engine returns the application's run engine. This is primarily for testing.
func (a *App) Engine() *run.Engine {
	return a.engine
}

// Graph returns the validated stage graph. This is primarily for testing.
func (a *App) Graph() *graph.Graph {
	return a.graph
}
