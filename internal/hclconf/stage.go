package hclconf

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/vk/gridflow/internal/model"
)

var stageSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "kind"},
		{Name: "task"},
		{Name: "depends_on"},
		{Name: "timeout"},
		{Name: "strategy"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "inputs"},
		{Type: "condition"},
		{Type: "retry"},
		{Type: "on_failure"},
		{Type: "canary"},
		{Type: "fork"},
		{Type: "subworkflow"},
	},
}

// decodeStage translates one `stage` block, recursing into nested template
// and fragment stages.
func decodeStage(block *hcl.Block) (*model.Stage, hcl.Diagnostics) {
	stage := &model.Stage{
		ID:   block.Labels[0],
		Kind: model.KindTask,
	}

	content, diags := block.Body.Content(stageSchema)

	if attr, ok := content.Attributes["kind"]; ok {
		kind, kindDiags := literalString(attr)
		diags = append(diags, kindDiags...)
		if kind != "" {
			stage.Kind = model.StageKind(kind)
			if !stage.Kind.Valid() {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid stage kind",
					Detail:   "kind must be one of task, fork, join, conditional, subworkflow.",
					Subject:  attr.Expr.Range().Ptr(),
				})
			}
		}
	}
	if attr, ok := content.Attributes["task"]; ok {
		task, taskDiags := literalString(attr)
		diags = append(diags, taskDiags...)
		stage.Task = task
	}
	if attr, ok := content.Attributes["depends_on"]; ok {
		deps, depDiags := literalStringList(attr)
		diags = append(diags, depDiags...)
		stage.DependsOn = deps
	}
	if attr, ok := content.Attributes["timeout"]; ok {
		d, durDiags := literalDuration(attr)
		diags = append(diags, durDiags...)
		stage.Policy.Timeout = d
	}
	if attr, ok := content.Attributes["strategy"]; ok {
		strat, stratDiags := literalString(attr)
		diags = append(diags, stratDiags...)
		stage.Policy.Strategy = model.Strategy(strat)
	}

	for _, inner := range content.Blocks {
		var blockDiags hcl.Diagnostics
		switch inner.Type {
		case "inputs":
			stage.Inputs, blockDiags = decodeInputs(inner)
		case "condition":
			stage.Condition, blockDiags = decodeCondition(inner)
		case "retry":
			stage.Policy.Retry, blockDiags = decodeRetry(inner)
		case "on_failure":
			stage.Policy.OnFailure, blockDiags = decodeOnFailure(inner)
		case "canary":
			stage.Policy.Canary, blockDiags = decodeCanary(inner)
		case "fork":
			stage.Fork, blockDiags = decodeFork(inner)
		case "subworkflow":
			stage.Subworkflow, blockDiags = decodeSubworkflow(inner)
		}
		diags = append(diags, blockDiags...)
	}

	return stage, diags
}

func decodeInputs(block *hcl.Block) (map[string]hcl.Expression, hcl.Diagnostics) {
	attrs, diags := block.Body.JustAttributes()
	if len(attrs) == 0 {
		return nil, diags
	}
	inputs := make(map[string]hcl.Expression, len(attrs))
	for name, attr := range attrs {
		inputs[name] = attr.Expr
	}
	return inputs, diags
}

var conditionSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "expression", Required: true},
		{Name: "on_false"},
		{Name: "branch_to"},
	},
}

func decodeCondition(block *hcl.Block) (*model.Condition, hcl.Diagnostics) {
	content, diags := block.Body.Content(conditionSchema)
	cond := &model.Condition{}
	if attr, ok := content.Attributes["expression"]; ok {
		// Kept raw: resolved against the run context at dispatch time.
		cond.Expression = attr.Expr
	}
	if attr, ok := content.Attributes["on_false"]; ok {
		onFalse, ofDiags := literalString(attr)
		diags = append(diags, ofDiags...)
		cond.OnFalse = model.OnFalse(onFalse)
	}
	if attr, ok := content.Attributes["branch_to"]; ok {
		target, btDiags := literalString(attr)
		diags = append(diags, btDiags...)
		cond.BranchTarget = target
	}
	return cond, diags
}

var retrySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "max_attempts"},
		{Name: "backoff"},
		{Name: "initial_delay"},
	},
}

func decodeRetry(block *hcl.Block) (model.RetryPolicy, hcl.Diagnostics) {
	content, diags := block.Body.Content(retrySchema)
	retry := model.RetryPolicy{}
	if attr, ok := content.Attributes["max_attempts"]; ok {
		n, nDiags := literalInt(attr)
		diags = append(diags, nDiags...)
		retry.MaxAttempts = n
	}
	if attr, ok := content.Attributes["backoff"]; ok {
		backoff, bDiags := literalString(attr)
		diags = append(diags, bDiags...)
		retry.Backoff = model.BackoffKind(backoff)
	}
	if attr, ok := content.Attributes["initial_delay"]; ok {
		d, dDiags := literalDuration(attr)
		diags = append(diags, dDiags...)
		retry.InitialDelay = d
	}
	return retry, diags
}

var onFailureSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "mode", Required: true},
		{Name: "compensation"},
	},
}

func decodeOnFailure(block *hcl.Block) (model.FailurePolicy, hcl.Diagnostics) {
	content, diags := block.Body.Content(onFailureSchema)
	policy := model.FailurePolicy{}
	if attr, ok := content.Attributes["mode"]; ok {
		mode, mDiags := literalString(attr)
		diags = append(diags, mDiags...)
		policy.Mode = model.FailureMode(mode)
	}
	if attr, ok := content.Attributes["compensation"]; ok {
		comp, cDiags := literalString(attr)
		diags = append(diags, cDiags...)
		policy.CompensationStage = comp
	}
	return policy, diags
}

var canarySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "sample_size", Required: true},
		{Name: "success_threshold", Required: true},
		{Name: "auto_promote"},
		{Name: "rollback_on_failure"},
	},
}

func decodeCanary(block *hcl.Block) (*model.CanaryPolicy, hcl.Diagnostics) {
	content, diags := block.Body.Content(canarySchema)
	canary := &model.CanaryPolicy{}
	if attr, ok := content.Attributes["sample_size"]; ok {
		n, nDiags := literalInt(attr)
		diags = append(diags, nDiags...)
		canary.SampleSize = n
	}
	if attr, ok := content.Attributes["success_threshold"]; ok {
		f, fDiags := literalFloat(attr)
		diags = append(diags, fDiags...)
		canary.SuccessThreshold = f
	}
	if attr, ok := content.Attributes["auto_promote"]; ok {
		b, bDiags := literalBool(attr)
		diags = append(diags, bDiags...)
		canary.AutoPromote = b
	}
	if attr, ok := content.Attributes["rollback_on_failure"]; ok {
		b, bDiags := literalBool(attr)
		diags = append(diags, bDiags...)
		canary.RollbackOnFailure = b
	}
	return canary, diags
}

var forkSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "items", Required: true},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "stage", LabelNames: []string{"id"}},
	},
}

func decodeFork(block *hcl.Block) (*model.ForkSpec, hcl.Diagnostics) {
	content, diags := block.Body.Content(forkSchema)
	spec := &model.ForkSpec{}
	if attr, ok := content.Attributes["items"]; ok {
		spec.Items = attr.Expr
	}
	for _, inner := range content.Blocks {
		stage, stageDiags := decodeStage(inner)
		diags = append(diags, stageDiags...)
		if stage != nil {
			spec.Template = append(spec.Template, stage)
		}
	}
	return spec, diags
}

var subworkflowSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "entry"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "stage", LabelNames: []string{"id"}},
	},
}

func decodeSubworkflow(block *hcl.Block) (*model.SubworkflowSpec, hcl.Diagnostics) {
	content, diags := block.Body.Content(subworkflowSchema)
	spec := &model.SubworkflowSpec{}
	if attr, ok := content.Attributes["entry"]; ok {
		entries, eDiags := literalStringList(attr)
		diags = append(diags, eDiags...)
		spec.Entry = entries
	}
	for _, inner := range content.Blocks {
		stage, stageDiags := decodeStage(inner)
		diags = append(diags, stageDiags...)
		if stage != nil {
			spec.Fragment = append(spec.Fragment, stage)
		}
	}
	return spec, diags
}
