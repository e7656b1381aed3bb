package expand

import (
	"fmt"

	"github.com/vk/gridflow/internal/model"
	"github.com/vk/gridflow/internal/stageid"
)

// ForkClones clones a fork stage's branch template once per item. Clone ids
// live under an indexed instance prefix of the fork id ("fork[i].branch"),
// intra-template references are rewritten with the same prefix, and template
// stages without intra-template dependencies depend on the fork stage
// itself. Each clone carries the index of the item it was created for.
func ForkClones(fork *model.Stage, count int) ([]*model.Stage, error) {
	if fork.Kind != model.KindFork {
		return nil, fmt.Errorf("stage %q is not a fork", fork.ID)
	}
	if fork.Fork == nil || len(fork.Fork.Template) == 0 {
		return nil, fmt.Errorf("fork %q has no branch template", fork.ID)
	}
	if count < 0 {
		return nil, fmt.Errorf("fork %q: negative clone count %d", fork.ID, count)
	}

	inner := make(map[string]struct{}, len(fork.Fork.Template))
	for _, t := range fork.Fork.Template {
		inner[t.ID] = struct{}{}
	}

	out := make([]*model.Stage, 0, count*len(fork.Fork.Template))
	for i := 0; i < count; i++ {
		prefix := stageid.Instance(fork.ID, i)
		for _, t := range fork.Fork.Template {
			clone := t.Clone()
			clone.ID = stageid.Qualify(prefix, t.ID)
			clone.ForkItem = &model.ForkItem{Index: i}
			intraDeps := 0
			for j, dep := range clone.DependsOn {
				if _, ok := inner[dep]; ok {
					clone.DependsOn[j] = stageid.Qualify(prefix, dep)
					intraDeps++
				}
			}
			if intraDeps == 0 {
				clone.DependsOn = append(clone.DependsOn, fork.ID)
			}
			if comp := clone.Policy.OnFailure.CompensationStage; comp != "" {
				if _, ok := inner[comp]; ok {
					clone.Policy.OnFailure.CompensationStage = stageid.Qualify(prefix, comp)
				}
			}
			out = append(out, clone)
		}
	}
	return out, nil
}

// MergeFork produces the working stage list of a run after a fork expanded:
// the original stages with the fork's dependents re-wired to additionally
// wait for every clone exit, plus the clones themselves. The input stages
// are not modified; re-wired dependents are fresh copies.
func MergeFork(stages []*model.Stage, fork *model.Stage, clones []*model.Stage) []*model.Stage {
	// Clone exits: clones nothing else in the clone set depends on.
	hasDependents := make(map[string]bool, len(clones))
	cloneSet := make(map[string]struct{}, len(clones))
	for _, c := range clones {
		cloneSet[c.ID] = struct{}{}
	}
	for _, c := range clones {
		for _, dep := range c.DependsOn {
			if _, ok := cloneSet[dep]; ok {
				hasDependents[dep] = true
			}
		}
	}
	var exits []string
	for _, c := range clones {
		if !hasDependents[c.ID] {
			exits = append(exits, c.ID)
		}
	}

	out := make([]*model.Stage, 0, len(stages)+len(clones))
	for _, s := range stages {
		if dependsOn(s, fork.ID) {
			rewired := s.Clone()
			rewired.DependsOn = append(rewired.DependsOn, exits...)
			out = append(out, rewired)
			continue
		}
		out = append(out, s)
	}
	return append(out, clones...)
}

func dependsOn(s *model.Stage, id string) bool {
	for _, dep := range s.DependsOn {
		if dep == id {
			return true
		}
	}
	return false
}
