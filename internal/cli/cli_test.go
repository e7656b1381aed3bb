package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PipelinePath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		args []string
	}{
		{name: "long flag", args: []string{"--pipeline", "pipeline.hcl"}},
		{name: "shorthand flag", args: []string{"-p", "pipeline.hcl"}},
		{name: "positional argument", args: []string{"pipeline.hcl"}},
		{name: "long flag wins over positional", args: []string{"--pipeline", "pipeline.hcl", "ignored.hcl"}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer

			cfg, shouldExit, err := Parse(tc.args, &out)

			require.NoError(t, err)
			assert.False(t, shouldExit)
			require.NotNil(t, cfg)
			assert.Equal(t, "pipeline.hcl", cfg.PipelinePath)
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	cfg, shouldExit, err := Parse([]string{"pipeline.hcl"}, &out)

	require.NoError(t, err)
	assert.False(t, shouldExit)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "hcl", cfg.Format)
	assert.Zero(t, cfg.HealthcheckPort)
	assert.Zero(t, cfg.Concurrency)
}

func TestParse_NoPathPrintsUsage(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	cfg, shouldExit, err := Parse([]string{}, &out)

	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
	assert.Contains(t, out.String(), "PIPELINE_PATH")
}

func TestParse_HelpFlag(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	cfg, shouldExit, err := Parse([]string{"-h"}, &out)

	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
}

func TestParse_InvalidOptions(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		args []string
	}{
		{name: "bad log format", args: []string{"--log-format", "xml", "pipeline.hcl"}},
		{name: "bad log level", args: []string{"--log-level", "verbose", "pipeline.hcl"}},
		{name: "bad definition format", args: []string{"--format", "toml", "pipeline.hcl"}},
		{name: "unknown flag", args: []string{"--frobnicate", "pipeline.hcl"}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer

			cfg, shouldExit, err := Parse(tc.args, &out)

			require.Error(t, err)
			assert.False(t, shouldExit)
			assert.Nil(t, cfg)

			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}

func TestParse_FormatInference(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		args []string
		want string
	}{
		{name: "yaml extension", args: []string{"pipeline.yaml"}, want: "yaml"},
		{name: "yml extension", args: []string{"pipeline.yml"}, want: "yaml"},
		{name: "hcl extension", args: []string{"pipeline.hcl"}, want: "hcl"},
		{name: "directory", args: []string{"./pipelines"}, want: "hcl"},
		{name: "explicit flag overrides extension", args: []string{"--format", "hcl", "pipeline.yaml"}, want: "hcl"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer

			cfg, _, err := Parse(tc.args, &out)

			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.Format)
		})
	}
}
