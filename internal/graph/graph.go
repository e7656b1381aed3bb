package graph

import (
	"sort"

	"github.com/vk/gridflow/internal/model"
)

// Graph owns the full set of stages for one pipeline version and the derived
// adjacency structure. It is built once by Build and immutable thereafter.
type Graph struct {
	stages        map[string]*model.Stage
	deps          map[string]map[string]struct{}
	dependents    map[string]map[string]struct{}
	compensations map[string]struct{}
	order         []string
}

// Len returns the number of stages in the graph.
func (g *Graph) Len() int { return len(g.stages) }

// Stage returns the stage with the given id.
func (g *Graph) Stage(id string) (*model.Stage, bool) {
	s, ok := g.stages[id]
	return s, ok
}

// IDs returns every stage id in lexicographic order.
func (g *Graph) IDs() []string {
	return append([]string(nil), g.order...)
}

// Stages returns every stage, ordered by id for deterministic iteration.
func (g *Graph) Stages() []*model.Stage {
	out := make([]*model.Stage, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.stages[id])
	}
	return out
}

// IsCompensation reports whether the stage is named as another stage's
// compensation. Compensation stages are never wave-scheduled: they run only
// through the failure path of the stage they compensate.
func (g *Graph) IsCompensation(id string) bool {
	_, ok := g.compensations[id]
	return ok
}

// Dependencies returns the sorted ids the given stage depends on.
func (g *Graph) Dependencies(id string) []string {
	return sortedKeys(g.deps[id])
}

// Dependents returns the sorted ids of stages that depend on the given stage.
func (g *Graph) Dependents(id string) []string {
	return sortedKeys(g.dependents[id])
}

// Descendants returns the set of stages reachable downstream from id,
// excluding id itself.
func (g *Graph) Descendants(id string) map[string]struct{} {
	return g.reach(id, g.dependents)
}

// Ancestors returns the set of stages id transitively depends on,
// excluding id itself.
func (g *Graph) Ancestors(id string) map[string]struct{} {
	return g.reach(id, g.deps)
}

func (g *Graph) reach(id string, adj map[string]map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	frontier := []string{id}
	for len(frontier) > 0 {
		cur := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		for next := range adj[cur] {
			if _, seen := out[next]; seen {
				continue
			}
			out[next] = struct{}{}
			frontier = append(frontier, next)
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
