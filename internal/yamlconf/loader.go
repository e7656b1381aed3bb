// Package yamlconf loads pipeline definitions written in YAML.
//
// YAML has no native expression syntax, so string values in expression
// positions (conditions, inputs, fork items) are parsed as HCL expressions:
// `stage.a.result` references another stage's output, and a string literal
// is written with embedded quotes (`'"hello"'`). Non-string scalars and
// plain collections are taken as literal values.
package yamlconf

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/gridflow/internal/config"
	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/fsutil"
	"github.com/vk/gridflow/internal/model"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// Extensions are the file suffixes this loader claims.
var Extensions = []string{".yaml", ".yml"}

// Loader implements config.Loader for YAML pipeline files.
type Loader struct{}

// NewLoader returns a fresh YAML loader.
func NewLoader() *Loader { return &Loader{} }

type fileDoc struct {
	Pipeline pipelineDoc `yaml:"pipeline"`
	Stages   []*stageDoc `yaml:"stages"`
}

type pipelineDoc struct {
	Name        string `yaml:"name"`
	Concurrency int    `yaml:"concurrency"`
}

type stageDoc struct {
	ID        string         `yaml:"id"`
	Kind      string         `yaml:"kind"`
	Task      string         `yaml:"task"`
	DependsOn []string       `yaml:"depends_on"`
	Timeout   string         `yaml:"timeout"`
	Strategy  string         `yaml:"strategy"`
	Inputs    map[string]any `yaml:"inputs"`

	Condition *struct {
		Expression string `yaml:"expression"`
		OnFalse    string `yaml:"on_false"`
		BranchTo   string `yaml:"branch_to"`
	} `yaml:"condition"`

	Retry *struct {
		MaxAttempts  int    `yaml:"max_attempts"`
		Backoff      string `yaml:"backoff"`
		InitialDelay string `yaml:"initial_delay"`
	} `yaml:"retry"`

	OnFailure *struct {
		Mode         string `yaml:"mode"`
		Compensation string `yaml:"compensation"`
	} `yaml:"on_failure"`

	Canary *struct {
		SampleSize        int     `yaml:"sample_size"`
		SuccessThreshold  float64 `yaml:"success_threshold"`
		AutoPromote       bool    `yaml:"auto_promote"`
		RollbackOnFailure bool    `yaml:"rollback_on_failure"`
	} `yaml:"canary"`

	Fork *struct {
		Items  string      `yaml:"items"`
		Stages []*stageDoc `yaml:"stages"`
	} `yaml:"fork"`

	Subworkflow *struct {
		Entry  []string    `yaml:"entry"`
		Stages []*stageDoc `yaml:"stages"`
	} `yaml:"subworkflow"`
}

// Load implements config.Loader.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	var files []string
	for _, path := range paths {
		found, err := fsutil.FindFilesByExtension(path, Extensions...)
		if err != nil {
			return nil, fmt.Errorf("scanning %q: %w", path, err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no YAML pipeline files found in %v", paths)
	}
	logger.Debug("Loading YAML pipeline definitions.", "files", len(files))

	out := &config.Model{}
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		var doc fileDoc
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", file, err)
		}
		if doc.Pipeline.Name != "" {
			out.Pipeline.Name = doc.Pipeline.Name
		}
		if doc.Pipeline.Concurrency > 0 {
			out.Pipeline.Concurrency = doc.Pipeline.Concurrency
		}
		for _, sd := range doc.Stages {
			stage, err := sd.toModel(file)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			out.Stages = append(out.Stages, stage)
		}
	}
	return out, nil
}

func (d *stageDoc) toModel(file string) (*model.Stage, error) {
	stage := &model.Stage{
		ID:        d.ID,
		Kind:      model.KindTask,
		Task:      d.Task,
		DependsOn: d.DependsOn,
	}
	if d.Kind != "" {
		stage.Kind = model.StageKind(d.Kind)
		if !stage.Kind.Valid() {
			return nil, fmt.Errorf("stage %q: unknown kind %q", d.ID, d.Kind)
		}
	}
	if d.Timeout != "" {
		t, err := time.ParseDuration(d.Timeout)
		if err != nil {
			return nil, fmt.Errorf("stage %q: invalid timeout: %w", d.ID, err)
		}
		stage.Policy.Timeout = t
	}
	stage.Policy.Strategy = model.Strategy(d.Strategy)

	if len(d.Inputs) > 0 {
		stage.Inputs = make(map[string]hcl.Expression, len(d.Inputs))
		for key, raw := range d.Inputs {
			expr, err := anyToExpr(raw, file)
			if err != nil {
				return nil, fmt.Errorf("stage %q: input %q: %w", d.ID, key, err)
			}
			stage.Inputs[key] = expr
		}
	}

	if d.Condition != nil {
		expr, err := parseExpr(d.Condition.Expression, file)
		if err != nil {
			return nil, fmt.Errorf("stage %q: condition: %w", d.ID, err)
		}
		stage.Condition = &model.Condition{
			Expression:   expr,
			OnFalse:      model.OnFalse(d.Condition.OnFalse),
			BranchTarget: d.Condition.BranchTo,
		}
	}
	if d.Retry != nil {
		retry := model.RetryPolicy{
			MaxAttempts: d.Retry.MaxAttempts,
			Backoff:     model.BackoffKind(d.Retry.Backoff),
		}
		if d.Retry.InitialDelay != "" {
			delay, err := time.ParseDuration(d.Retry.InitialDelay)
			if err != nil {
				return nil, fmt.Errorf("stage %q: invalid initial_delay: %w", d.ID, err)
			}
			retry.InitialDelay = delay
		}
		stage.Policy.Retry = retry
	}
	if d.OnFailure != nil {
		stage.Policy.OnFailure = model.FailurePolicy{
			Mode:              model.FailureMode(d.OnFailure.Mode),
			CompensationStage: d.OnFailure.Compensation,
		}
	}
	if d.Canary != nil {
		stage.Policy.Canary = &model.CanaryPolicy{
			SampleSize:        d.Canary.SampleSize,
			SuccessThreshold:  d.Canary.SuccessThreshold,
			AutoPromote:       d.Canary.AutoPromote,
			RollbackOnFailure: d.Canary.RollbackOnFailure,
		}
	}
	if d.Fork != nil {
		items, err := parseExpr(d.Fork.Items, file)
		if err != nil {
			return nil, fmt.Errorf("stage %q: fork items: %w", d.ID, err)
		}
		spec := &model.ForkSpec{Items: items}
		for _, td := range d.Fork.Stages {
			tmpl, err := td.toModel(file)
			if err != nil {
				return nil, err
			}
			spec.Template = append(spec.Template, tmpl)
		}
		stage.Fork = spec
	}
	if d.Subworkflow != nil {
		spec := &model.SubworkflowSpec{Entry: d.Subworkflow.Entry}
		for _, fd := range d.Subworkflow.Stages {
			frag, err := fd.toModel(file)
			if err != nil {
				return nil, err
			}
			spec.Fragment = append(spec.Fragment, frag)
		}
		stage.Subworkflow = spec
	}
	return stage, nil
}

func parseExpr(src, filename string) (hcl.Expression, error) {
	if src == "" {
		return nil, fmt.Errorf("empty expression")
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), filename, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, diags
	}
	return expr, nil
}

// anyToExpr converts a YAML input value into an expression: strings are
// parsed as HCL, everything else becomes a literal.
func anyToExpr(raw any, filename string) (hcl.Expression, error) {
	if s, ok := raw.(string); ok {
		return parseExpr(s, filename)
	}
	val, err := anyToCty(raw)
	if err != nil {
		return nil, err
	}
	return hcl.StaticExpr(val, hcl.Range{Filename: filename}), nil
}

func anyToCty(raw any) (cty.Value, error) {
	switch v := raw.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		// Only nested strings land here; top-level strings are expressions.
		return cty.StringVal(v), nil
	case bool:
		return cty.BoolVal(v), nil
	case int:
		return cty.NumberIntVal(int64(v)), nil
	case int64:
		return cty.NumberIntVal(v), nil
	case float64:
		return cty.NumberFloatVal(v), nil
	case []any:
		if len(v) == 0 {
			return cty.EmptyTupleVal, nil
		}
		vals := make([]cty.Value, 0, len(v))
		for _, item := range v {
			cv, err := anyToCty(item)
			if err != nil {
				return cty.NilVal, err
			}
			vals = append(vals, cv)
		}
		return cty.TupleVal(vals), nil
	case map[string]any:
		if len(v) == 0 {
			return cty.EmptyObjectVal, nil
		}
		vals := make(map[string]cty.Value, len(v))
		for key, item := range v {
			cv, err := anyToCty(item)
			if err != nil {
				return cty.NilVal, err
			}
			vals[key] = cv
		}
		return cty.ObjectVal(vals), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported YAML value of type %T", raw)
	}
}
