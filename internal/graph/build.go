package graph

import (
	"fmt"
	"sort"

	"github.com/vk/gridflow/internal/model"
)

// Build assembles a set of stage models into a validated Graph. All checks
// run to completion and every problem found is reported together; on any
// error the returned graph is nil.
//
// Subworkflow stages must be flattened by the expand package before Build:
// a graph handed to the scheduler contains only primitive stages.
func Build(stages []*model.Stage) (*Graph, error) {
	g := &Graph{
		stages:        make(map[string]*model.Stage, len(stages)),
		deps:          make(map[string]map[string]struct{}, len(stages)),
		dependents:    make(map[string]map[string]struct{}, len(stages)),
		compensations: make(map[string]struct{}),
	}
	var errs ValidationErrors
	addErr := func(id, format string, args ...any) {
		errs = append(errs, &ValidationError{StageID: id, Msg: fmt.Sprintf(format, args...)})
	}

	for _, s := range stages {
		if s.ID == "" {
			addErr("", "stage with empty id")
			continue
		}
		if _, dup := g.stages[s.ID]; dup {
			addErr(s.ID, "duplicate stage id")
			continue
		}
		if !s.Kind.Valid() {
			addErr(s.ID, "unknown stage kind %q", s.Kind)
		}
		if s.Kind == model.KindSubworkflow {
			addErr(s.ID, "subworkflow stage was not expanded before graph construction")
		}
		g.stages[s.ID] = s
		g.deps[s.ID] = make(map[string]struct{}, len(s.DependsOn))
		g.dependents[s.ID] = make(map[string]struct{})
	}

	for id := range g.stages {
		g.order = append(g.order, id)
	}
	sort.Strings(g.order)

	// Second pass: edges. Unknown references are reported but not linked,
	// so the cycle check below still runs over everything that resolved.
	for _, id := range g.order {
		s := g.stages[id]
		for _, dep := range s.DependsOn {
			if dep == id {
				addErr(id, "stage depends on itself")
				continue
			}
			if _, known := g.stages[dep]; !known {
				addErr(id, "depends on unknown stage %q", dep)
				continue
			}
			g.deps[id][dep] = struct{}{}
			g.dependents[dep][id] = struct{}{}
		}
	}

	for _, id := range g.order {
		s := g.stages[id]
		if s.Kind == model.KindJoin && len(s.DependsOn) == 0 {
			addErr(id, "join stage has no dependencies")
		}
		if s.Policy.Strategy == model.StrategyCanary {
			if s.Policy.Canary == nil {
				addErr(id, "canary strategy without canary parameters")
			}
			if _, ok := s.Inputs["items"]; !ok {
				addErr(id, `canary stage has no "items" input`)
			}
		}
		if comp := s.Policy.OnFailure.CompensationStage; comp != "" {
			switch {
			case comp == id:
				addErr(id, "stage names itself as its compensation")
			default:
				if _, known := g.stages[comp]; !known {
					addErr(id, "compensation stage %q does not exist", comp)
				} else {
					g.compensations[comp] = struct{}{}
					if _, cyclic := g.Ancestors(comp)[id]; cyclic {
						addErr(id, "compensation stage %q depends on the stage it compensates", comp)
					}
				}
			}
		}
	}

	errs = append(errs, g.detectCycles()...)

	if len(errs) > 0 {
		return nil, errs
	}
	return g, nil
}

// detectCycles runs a depth-first search with an in-progress marker set.
// Revisiting an in-progress stage proves a cycle; every stage on the cycle
// path is reported.
func (g *Graph) detectCycles() ValidationErrors {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(g.stages))
	var errs ValidationErrors
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		state[id] = inProgress
		stack = append(stack, id)
		for _, dep := range g.Dependencies(id) {
			switch state[dep] {
			case unvisited:
				visit(dep)
			case inProgress:
				// Reconstruct the cycle from the stack, starting at the
				// revisited stage.
				start := 0
				for i, onPath := range stack {
					if onPath == dep {
						start = i
						break
					}
				}
				for _, member := range stack[start:] {
					errs = append(errs, &ValidationError{
						StageID: member,
						Msg:     fmt.Sprintf("dependency cycle through %q", dep),
					})
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
	}

	for _, id := range g.order {
		if state[id] == unvisited {
			visit(id)
		}
	}
	return errs
}
