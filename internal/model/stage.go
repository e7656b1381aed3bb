package model

import (
	"github.com/hashicorp/hcl/v2"
)

// StageKind distinguishes the structural role of a stage in the graph.
type StageKind string

const (
	// KindTask is a plain unit of work executed by a registered handler.
	KindTask StageKind = "task"
	// KindFork starts a parallel branch set. A fork with a branch template
	// and an items expression is expanded at run time, once per item.
	KindFork StageKind = "fork"
	// KindJoin closes a parallel branch set. Its dependencies are exactly
	// its fan-in set; the wave barrier guarantees it cannot start until
	// every fan-in branch is terminal.
	KindJoin StageKind = "join"
	// KindConditional exists only to evaluate its condition and steer
	// dependents; it performs no work of its own.
	KindConditional StageKind = "conditional"
	// KindSubworkflow wraps a reusable fragment of stages. It never reaches
	// the scheduler: expansion flattens it into prefixed plain stages.
	KindSubworkflow StageKind = "subworkflow"
)

// Valid reports whether k is one of the defined stage kinds.
func (k StageKind) Valid() bool {
	switch k {
	case KindTask, KindFork, KindJoin, KindConditional, KindSubworkflow:
		return true
	}
	return false
}

// Stage is the immutable description of one schedulable unit of work.
// It is created at pipeline-definition time and never mutated afterwards;
// concurrent runs of the same pipeline share the same Stage values.
type Stage struct {
	// ID uniquely identifies the stage within its pipeline.
	ID string
	// Kind is the structural role of the stage.
	Kind StageKind
	// Task names the registered handler that executes this stage.
	// Empty for purely structural kinds (fork, join, conditional).
	Task string
	// DependsOn lists the ids of stages that must reach a terminal state
	// before this stage may start.
	DependsOn []string
	// Condition optionally guards execution of the stage.
	Condition *Condition
	// Policy governs timeout, retry, canary, and failure handling.
	Policy ExecutionPolicy
	// Inputs maps input keys to expressions resolved against the run
	// context just before execution.
	Inputs map[string]hcl.Expression
	// Fork describes the branch template of a dynamic fork stage.
	// Nil unless Kind is KindFork.
	Fork *ForkSpec
	// Subworkflow describes the wrapped fragment of a subworkflow stage.
	// Nil unless Kind is KindSubworkflow.
	Subworkflow *SubworkflowSpec
	// ForkItem binds a fork clone to the item it was created for.
	// Nil on authored stages; set only on clones produced at run time.
	ForkItem *ForkItem
}

// ForkItem records which element of a fork's item list a clone belongs to.
// The evaluator exposes it to the clone's expressions as `item` and `index`.
type ForkItem struct {
	Index int
}

// Clone returns a copy of the stage with its own slices and maps, so the
// copy can be re-identified and re-wired without touching the original.
// Expressions are shared: they are never mutated after parsing.
func (s *Stage) Clone() *Stage {
	out := *s
	out.DependsOn = append([]string(nil), s.DependsOn...)
	if s.Inputs != nil {
		out.Inputs = make(map[string]hcl.Expression, len(s.Inputs))
		for k, v := range s.Inputs {
			out.Inputs[k] = v
		}
	}
	if s.Condition != nil {
		cond := *s.Condition
		out.Condition = &cond
	}
	if s.Policy.Canary != nil {
		canary := *s.Policy.Canary
		out.Policy.Canary = &canary
	}
	if s.ForkItem != nil {
		item := *s.ForkItem
		out.ForkItem = &item
	}
	// Fork and Subworkflow specs are shared: templates and fragments are
	// themselves immutable and cloned on expansion.
	return &out
}
