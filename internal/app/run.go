package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/run"
)

// Run executes the loaded pipeline once and blocks until the run reaches a
// terminal phase.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.cfg.HealthcheckPort > 0 {
		a.startHealthcheckServer(a.cfg.HealthcheckPort)
	}

	if len(a.graph.IDs()) == 0 {
		a.logger.Warn("No stages found in pipeline, execution not required.")
		return nil
	}

	concurrency := a.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = a.pipeline.Concurrency
	}

	name := a.pipeline.Name
	if name == "" {
		name = "pipeline"
	}
	a.logger.Info("🚀 Starting run.", "pipeline", name, "stages", len(a.graph.IDs()))

	id := a.engine.SubmitRun(ctx, a.graph, run.Options{Concurrency: concurrency})
	err := a.engine.Wait(ctx, id)

	statuses, statErr := a.engine.RunStatus(id)
	if statErr == nil {
		a.printSummary(statuses)
	}

	if err != nil {
		return fmt.Errorf("run %s: %w", id, err)
	}
	a.logger.Info("🏁 Run finished.", "run", id)
	return nil
}

// printSummary writes one line per stage with its terminal status. The
// snapshot can hold more stages than the authored graph when forks expanded
// at run time, so it iterates the snapshot rather than the graph.
func (a *App) printSummary(statuses map[string]run.StageStatus) {
	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		st := statuses[id]
		attrs := []any{"stage", id, "status", st.Status}
		if st.Attempts > 1 {
			attrs = append(attrs, "attempts", st.Attempts)
		}
		if st.Cause != "" {
			attrs = append(attrs, "cause", st.Cause)
		}
		a.logger.Info("Stage result.", attrs...)
	}
}
