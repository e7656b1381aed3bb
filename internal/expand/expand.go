// Package expand flattens composite stages into primitive ones.
//
// Two kinds of expansion exist:
//
//   - Subworkflow expansion happens at build time, before graph validation.
//     Every fragment stage is cloned under the subworkflow's id prefix and
//     intra-fragment references are rewritten with the same prefix. The
//     subworkflow stage itself survives as a join over the fragment's exit
//     stages, so external dependents keep a single stable id to depend on.
//
//   - Dynamic fork expansion happens once per run, when the fork stage's
//     item list is known. The branch template is cloned once per item under
//     an indexed instance prefix, and the fork's dependents are re-wired to
//     wait for every clone.
//
// Both expansions are purely structural rewrites over stage ids and are
// idempotent: expanding the same input under the same prefix twice yields
// structurally identical output.
package expand

import (
	"fmt"
	"sort"

	"github.com/vk/gridflow/internal/model"
	"github.com/vk/gridflow/internal/stageid"
)

// Pipeline expands every subworkflow stage in the set, recursing into
// nested subworkflows. The input slice is not modified.
func Pipeline(stages []*model.Stage) ([]*model.Stage, error) {
	out := make([]*model.Stage, 0, len(stages))
	expandedAny := false
	for _, s := range stages {
		if s.Kind != model.KindSubworkflow {
			out = append(out, s)
			continue
		}
		flat, err := Composite(s)
		if err != nil {
			return nil, err
		}
		out = append(out, flat...)
		expandedAny = true
	}
	if expandedAny {
		// A fragment may itself contain subworkflow stages.
		return Pipeline(out)
	}
	return out, nil
}

// Composite flattens one subworkflow stage into primitive stages.
//
// Every fragment stage is cloned with id `prefix.innerID`, intra-fragment
// dependency, branch, and compensation references are rewritten under the
// same prefix, and the designated entry stages additionally inherit the
// subworkflow's own external dependencies. The subworkflow stage itself is
// returned last, rewritten into a join over the fragment's exit stages.
func Composite(s *model.Stage) ([]*model.Stage, error) {
	if s.Kind != model.KindSubworkflow {
		return nil, fmt.Errorf("stage %q is not a subworkflow", s.ID)
	}
	if s.Subworkflow == nil || len(s.Subworkflow.Fragment) == 0 {
		return nil, fmt.Errorf("subworkflow %q has an empty fragment", s.ID)
	}

	inner := make(map[string]struct{}, len(s.Subworkflow.Fragment))
	for _, frag := range s.Subworkflow.Fragment {
		inner[frag.ID] = struct{}{}
	}

	entries := make(map[string]struct{}, len(s.Subworkflow.Entry))
	for _, e := range s.Subworkflow.Entry {
		if _, ok := inner[e]; !ok {
			return nil, fmt.Errorf("subworkflow %q: entry %q is not a fragment stage", s.ID, e)
		}
		entries[e] = struct{}{}
	}

	hasIntraDependents := make(map[string]bool, len(inner))
	out := make([]*model.Stage, 0, len(s.Subworkflow.Fragment)+1)
	for _, frag := range s.Subworkflow.Fragment {
		clone := frag.Clone()
		clone.ID = stageid.Qualify(s.ID, frag.ID)
		intraDeps := 0
		for i, dep := range clone.DependsOn {
			if _, ok := inner[dep]; ok {
				clone.DependsOn[i] = stageid.Qualify(s.ID, dep)
				hasIntraDependents[dep] = true
				intraDeps++
			}
		}
		if clone.Condition != nil && clone.Condition.BranchTarget != "" {
			if _, ok := inner[clone.Condition.BranchTarget]; ok {
				clone.Condition.BranchTarget = stageid.Qualify(s.ID, clone.Condition.BranchTarget)
			}
		}
		if comp := clone.Policy.OnFailure.CompensationStage; comp != "" {
			if _, ok := inner[comp]; ok {
				clone.Policy.OnFailure.CompensationStage = stageid.Qualify(s.ID, comp)
			}
		}
		isEntry := false
		if len(entries) > 0 {
			_, isEntry = entries[frag.ID]
		} else {
			isEntry = intraDeps == 0
		}
		if isEntry {
			clone.DependsOn = append(clone.DependsOn, s.DependsOn...)
		}
		out = append(out, clone)
	}

	// Exit stages are the fragment stages nothing inside the fragment
	// depends on; the rewritten subworkflow stage joins on all of them.
	var exits []string
	for _, frag := range s.Subworkflow.Fragment {
		if !hasIntraDependents[frag.ID] {
			exits = append(exits, stageid.Qualify(s.ID, frag.ID))
		}
	}
	sort.Strings(exits)

	joined := s.Clone()
	joined.Kind = model.KindJoin
	joined.Subworkflow = nil
	joined.DependsOn = exits
	out = append(out, joined)

	return out, nil
}
