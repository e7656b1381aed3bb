// Package scheduler computes the execution waves of a validated pipeline
// graph.
//
// A wave is a maximal set of stages that are mutually independent and whose
// dependencies are all satisfied by prior waves. Waves are the unit of the
// run coordinator's barrier: everything in wave N finishes before wave N+1
// starts, which is what gives fork/join its correctness.
package scheduler

import (
	"fmt"
	"sort"
	"strings"
)

// View is the read-only slice of a graph the scheduler needs. The graph
// package's Graph satisfies it.
type View interface {
	IDs() []string
	Dependencies(id string) []string
}

// InternalConsistencyError reports stages that could not be scheduled into
// any wave. It indicates a cycle that escaped graph validation, which is an
// engine bug rather than a pipeline-author mistake, and is never retried or
// compensated.
type InternalConsistencyError struct {
	Remaining []string
}

// Error implements the error interface.
func (e *InternalConsistencyError) Error() string {
	return fmt.Sprintf("internal consistency error: %d stages unschedulable (cycle escaped validation): %s",
		len(e.Remaining), strings.Join(e.Remaining, ", "))
}

// Waves partitions the graph into topological layers using a variant of
// Kahn's algorithm: repeatedly collect every zero-in-degree unscheduled
// stage into one wave, then decrement the in-degree of its dependents.
// Stages within a wave are sorted by id so identical graphs always produce
// identical schedules.
func Waves(v View) ([][]string, error) {
	ids := v.IDs()
	indegree := make(map[string]int, len(ids))
	dependents := make(map[string][]string, len(ids))
	for _, id := range ids {
		deps := v.Dependencies(id)
		indegree[id] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var waves [][]string
	scheduled := 0
	for scheduled < len(ids) {
		var wave []string
		for _, id := range ids {
			if indegree[id] == 0 {
				wave = append(wave, id)
				indegree[id] = -1 // mark scheduled
			}
		}
		if len(wave) == 0 {
			var remaining []string
			for _, id := range ids {
				if indegree[id] > 0 {
					remaining = append(remaining, id)
				}
			}
			sort.Strings(remaining)
			return nil, &InternalConsistencyError{Remaining: remaining}
		}
		sort.Strings(wave)
		for _, id := range wave {
			for _, dep := range dependents[id] {
				indegree[dep]--
			}
		}
		scheduled += len(wave)
		waves = append(waves, wave)
	}
	return waves, nil
}
