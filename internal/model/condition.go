package model

import (
	"github.com/hashicorp/hcl/v2"
)

// OnFalse selects what happens to a stage whose condition evaluates false.
type OnFalse string

const (
	// OnFalseSkip marks the stage Skipped; dependents are still unblocked.
	OnFalseSkip OnFalse = "skip"
	// OnFalseFail marks the stage Failed and applies its failure policy as
	// if execution had failed.
	OnFalseFail OnFalse = "fail"
	// OnFalseBranch marks the stage Skipped and additionally skips every
	// stage on the direct path to the branch target, leaving the target
	// reachable by normal wave scheduling.
	OnFalseBranch OnFalse = "branch"
)

// Condition guards execution of a stage. The expression is evaluated against
// the read-only outputs of already-completed stages just before dispatch.
type Condition struct {
	// Expression must evaluate to a boolean. An evaluator failure is
	// treated as a stage failure subject to the normal failure policy.
	Expression hcl.Expression
	// OnFalse selects the policy applied when the expression is false.
	// Defaults to OnFalseSkip.
	OnFalse OnFalse
	// BranchTarget names the stage control branches to when OnFalse is
	// OnFalseBranch.
	BranchTarget string
}

// Effect returns the effective on-false policy, defaulting to skip.
func (c *Condition) Effect() OnFalse {
	if c == nil || c.OnFalse == "" {
		return OnFalseSkip
	}
	return c.OnFalse
}
