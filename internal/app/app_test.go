package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridflow/internal/hclconf"
	"github.com/vk/gridflow/internal/testutil"
	"github.com/vk/gridflow/internal/yamlconf"
)

// setupAppTest writes the pipeline definition to a temp file and builds an
// App over it with debug logging captured.
func setupAppTest(t *testing.T, filename, src string) (*App, *testutil.SafeBuffer) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	cfg, err := NewConfig(Config{
		PipelinePath: path,
		LogLevel:     "debug",
		LogFormat:    "text",
	})
	require.NoError(t, err)

	logBuffer := &testutil.SafeBuffer{}
	testApp := NewApp(logBuffer, cfg, hclconf.NewLoader())

	t.Cleanup(func() {
		if os.Getenv("GRIDFLOW_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})
	return testApp, logBuffer
}

func TestApp_RunsPipelineEndToEnd(t *testing.T) {
	t.Parallel()
	testApp, logBuffer := setupAppTest(t, "main.hcl", `
pipeline "demo" {
  concurrency = 2
}

stage "greet" {
  task = "print"
  inputs {
    message = "hello"
  }
}

stage "env" {
  task       = "env_vars"
  depends_on = ["greet"]
}
`)

	require.NoError(t, testApp.Run(context.Background()))

	logs := logBuffer.String()
	assert.Contains(t, logs, "Run finished")
	assert.Contains(t, logs, "stage=greet")
	assert.Contains(t, logs, "status=succeeded")
}

func TestApp_RunReportsStageFailure(t *testing.T) {
	t.Parallel()
	testApp, logBuffer := setupAppTest(t, "main.hcl", `
stage "wait" {
  task = "delay"
  inputs {
    duration = "not-a-duration"
  }
}
`)

	err := testApp.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, logBuffer.String(), "status=failed")
}

func TestNewApp_PanicsOnStartupErrors(t *testing.T) {
	t.Parallel()

	write := func(t *testing.T, src string) *Config {
		t.Helper()
		path := filepath.Join(t.TempDir(), "main.hcl")
		require.NoError(t, os.WriteFile(path, []byte(src), 0644))
		cfg, err := NewConfig(Config{PipelinePath: path, LogFormat: "text", LogLevel: "error"})
		require.NoError(t, err)
		return cfg
	}

	t.Run("dependency cycle", func(t *testing.T) {
		cfg := write(t, `
stage "a" {
  task       = "print"
  depends_on = ["b"]
}
stage "b" {
  task       = "print"
  depends_on = ["a"]
}
`)
		assert.Panics(t, func() {
			NewApp(&testutil.SafeBuffer{}, cfg, hclconf.NewLoader())
		})
	})

	t.Run("unregistered task type", func(t *testing.T) {
		cfg := write(t, `
stage "a" {
  task = "launch_rockets"
}
`)
		assert.Panics(t, func() {
			NewApp(&testutil.SafeBuffer{}, cfg, hclconf.NewLoader())
		})
	})

	t.Run("missing pipeline file", func(t *testing.T) {
		cfg, err := NewConfig(Config{PipelinePath: filepath.Join(t.TempDir(), "ghost.hcl")})
		require.NoError(t, err)
		assert.Panics(t, func() {
			NewApp(&testutil.SafeBuffer{}, cfg, hclconf.NewLoader())
		})
	})
}

func TestApp_YAMLPipeline(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  name: demo

stages:
  - id: greet
    task: print
    inputs:
      message: '"hi from yaml"'
`), 0644))

	cfg, err := NewConfig(Config{PipelinePath: path, Format: "yaml", LogFormat: "text", LogLevel: "debug"})
	require.NoError(t, err)

	logBuffer := &testutil.SafeBuffer{}
	testApp := NewApp(logBuffer, cfg, yamlconf.NewLoader())
	require.NoError(t, testApp.Run(context.Background()))
	assert.Contains(t, logBuffer.String(), "hi from yaml")
}

func TestNewConfig_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewConfig(Config{})
	assert.Error(t, err)

	cfg, err := NewConfig(Config{PipelinePath: "p.hcl"})
	require.NoError(t, err)
	assert.Equal(t, "hcl", cfg.Format, "format defaults to hcl")

	_, err = NewConfig(Config{PipelinePath: "p.hcl", Format: "toml"})
	assert.Error(t, err)
}
