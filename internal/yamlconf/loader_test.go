package yamlconf

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridflow/internal/config"
	"github.com/vk/gridflow/internal/eval"
	"github.com/vk/gridflow/internal/model"
	"github.com/zclconf/go-cty/cty"
)

func loadString(t *testing.T, src string) (*config.Model, error) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return NewLoader().Load(context.Background(), path)
}

func TestLoad_FullPipeline(t *testing.T) {
	t.Parallel()
	src := `
pipeline:
  name: etl
  concurrency: 4

stages:
  - id: extract
    task: http_fetch
    timeout: 30s
    inputs:
      url: '"https://example.com/data"'
      limit: 100
    retry:
      max_attempts: 3
      backoff: exponential
      initial_delay: 5s

  - id: transform
    task: map_rows
    depends_on: [extract]
    condition:
      expression: stage.extract.rows > 0
      on_false: skip
    on_failure:
      mode: compensate
      compensation: cleanup

  - id: cleanup
    task: noop
`
	out, err := loadString(t, src)
	require.NoError(t, err)

	assert.Equal(t, "etl", out.Pipeline.Name)
	assert.Equal(t, 4, out.Pipeline.Concurrency)
	require.Len(t, out.Stages, 3)

	extract := out.Stages[0]
	assert.Equal(t, model.KindTask, extract.Kind)
	assert.Equal(t, 30*time.Second, extract.Policy.Timeout)
	assert.Equal(t, model.RetryPolicy{
		MaxAttempts:  3,
		Backoff:      model.BackoffExponential,
		InitialDelay: 5 * time.Second,
	}, extract.Policy.Retry)

	// String inputs are expressions, other scalars are literals.
	evaluator := eval.NewHCL()
	url, err := evaluator.Evaluate(context.Background(), extract.Inputs["url"], eval.Scope{})
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("https://example.com/data"), url)
	limit, err := evaluator.Evaluate(context.Background(), extract.Inputs["limit"], eval.Scope{})
	require.NoError(t, err)
	assert.True(t, cty.NumberIntVal(100).RawEquals(limit))

	transform := out.Stages[1]
	assert.Equal(t, []string{"extract"}, transform.DependsOn)
	require.NotNil(t, transform.Condition)
	assert.Equal(t, model.OnFalseSkip, transform.Condition.OnFalse)
	assert.Equal(t, "cleanup", transform.Policy.OnFailure.CompensationStage)

	// The deferred condition resolves against the run context like HCL ones.
	val, err := evaluator.Evaluate(context.Background(), transform.Condition.Expression, eval.Scope{
		Stages: map[string]cty.Value{
			"extract": cty.ObjectVal(map[string]cty.Value{"rows": cty.NumberIntVal(5)}),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, cty.True, val)
}

func TestLoad_ForkSubworkflowAndCanary(t *testing.T) {
	t.Parallel()
	src := `
stages:
  - id: fanout
    kind: fork
    fork:
      items: stage.list.regions
      stages:
        - id: deploy
          task: deploy_region
          inputs:
            region: item

  - id: ingest
    kind: subworkflow
    depends_on: [fanout]
    subworkflow:
      entry: [pull]
      stages:
        - id: pull
          task: pull_data
        - id: store
          task: store_data
          depends_on: [pull]

  - id: rollout
    task: deploy
    strategy: canary
    inputs:
      items: run.targets
    canary:
      sample_size: 2
      success_threshold: 1.0
      auto_promote: false
      rollback_on_failure: true
`
	out, err := loadString(t, src)
	require.NoError(t, err)
	require.Len(t, out.Stages, 3)

	fanout := out.Stages[0]
	assert.Equal(t, model.KindFork, fanout.Kind)
	require.NotNil(t, fanout.Fork)
	require.Len(t, fanout.Fork.Template, 1)
	assert.Equal(t, "deploy", fanout.Fork.Template[0].ID)

	ingest := out.Stages[1]
	require.NotNil(t, ingest.Subworkflow)
	assert.Equal(t, []string{"pull"}, ingest.Subworkflow.Entry)
	require.Len(t, ingest.Subworkflow.Fragment, 2)

	rollout := out.Stages[2]
	assert.Equal(t, model.StrategyCanary, rollout.Policy.Strategy)
	require.NotNil(t, rollout.Policy.Canary)
	assert.Equal(t, 2, rollout.Policy.Canary.SampleSize)
	assert.Equal(t, 1.0, rollout.Policy.Canary.SuccessThreshold)
	assert.True(t, rollout.Policy.Canary.RollbackOnFailure)
}

func TestLoad_LiteralCollections(t *testing.T) {
	t.Parallel()
	src := `
stages:
  - id: a
    task: noop
    inputs:
      tags: [1, 2, 3]
      meta:
        team: data
        critical: true
`
	out, err := loadString(t, src)
	require.NoError(t, err)
	require.Len(t, out.Stages, 1)

	evaluator := eval.NewHCL()
	tags, err := evaluator.Evaluate(context.Background(), out.Stages[0].Inputs["tags"], eval.Scope{})
	require.NoError(t, err)
	assert.Equal(t, 3, tags.LengthInt())

	meta, err := evaluator.Evaluate(context.Background(), out.Stages[0].Inputs["meta"], eval.Scope{})
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("data"), meta.GetAttr("team"))
	assert.Equal(t, cty.True, meta.GetAttr("critical"))
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		src  string
	}{
		{
			name: "unknown kind",
			src: `
stages:
  - id: a
    kind: loop
`,
		},
		{
			name: "bad timeout",
			src: `
stages:
  - id: a
    task: noop
    timeout: fast
`,
		},
		{
			name: "bad retry delay",
			src: `
stages:
  - id: a
    task: noop
    retry:
      max_attempts: 2
      initial_delay: soon
`,
		},
		{
			name: "empty condition expression",
			src: `
stages:
  - id: a
    task: noop
    condition:
      on_false: skip
`,
		},
		{
			name: "malformed document",
			src:  "stages: [",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadString(t, tc.src)
			assert.Error(t, err)
		})
	}

	t.Run("no files", func(t *testing.T) {
		_, err := NewLoader().Load(context.Background(), t.TempDir())
		assert.Error(t, err)
	})
}
