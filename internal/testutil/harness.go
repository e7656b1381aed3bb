package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/eval"
	"github.com/vk/gridflow/internal/expand"
	"github.com/vk/gridflow/internal/graph"
	"github.com/vk/gridflow/internal/hclconf"
	"github.com/vk/gridflow/internal/registry"
	"github.com/vk/gridflow/internal/run"
)

// PipelineResult holds the outcome of a harness run.
type PipelineResult struct {
	RunID     string
	Err       error
	Phase     run.Phase
	Statuses  map[string]run.StageStatus
	Engine    *run.Engine
	LogOutput string
}

// LoadStagesHCL parses an inline HCL pipeline definition and returns the
// expanded, validated graph.
func LoadStagesHCL(t *testing.T, src string) *graph.Graph {
	t.Helper()

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "main.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	model, err := hclconf.NewLoader().Load(context.Background(), path)
	require.NoError(t, err, "pipeline definition must parse")

	stages, err := expand.Pipeline(model.Stages)
	require.NoError(t, err, "pipeline must expand")

	g, err := graph.Build(stages)
	require.NoError(t, err, "graph must validate")
	return g
}

// RunPipelineHCL loads an inline HCL pipeline, runs it to completion through
// a fresh engine, and returns the terminal snapshot.
func RunPipelineHCL(t *testing.T, src string, modules ...registry.Module) *PipelineResult {
	t.Helper()
	return RunPipelineHCLOpts(t, src, run.Options{}, modules...)
}

// RunPipelineHCLOpts is RunPipelineHCL with explicit run options.
func RunPipelineHCLOpts(t *testing.T, src string, opts run.Options, modules ...registry.Module) *PipelineResult {
	t.Helper()

	g := LoadStagesHCL(t, src)

	reg := registry.New()
	for _, mod := range modules {
		mod.Register(reg)
	}
	require.NoError(t, reg.Validate(g), "every task must resolve to a handler")

	logBuffer := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logBuffer, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	engine := run.NewEngine(reg, eval.NewHCL())
	id := engine.SubmitRun(ctx, g, opts)
	err := engine.Wait(ctx, id)

	statuses, statErr := engine.RunStatus(id)
	require.NoError(t, statErr)
	phase, phaseErr := engine.RunPhase(id)
	require.NoError(t, phaseErr)

	if os.Getenv("GRIDFLOW_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &PipelineResult{
		RunID:     id,
		Err:       err,
		Phase:     phase,
		Statuses:  statuses,
		Engine:    engine,
		LogOutput: logBuffer.String(),
	}
}

// RequireStageStatus asserts a stage's terminal status in a harness result.
func RequireStageStatus(t *testing.T, result *PipelineResult, stageID string, want run.Status) {
	t.Helper()
	st, ok := result.Statuses[stageID]
	require.True(t, ok, "stage %q missing from snapshot", stageID)
	require.Equal(t, want, st.Status, "stage %q: unexpected status (cause: %s)", stageID, st.Cause)
}
