package run

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vk/gridflow/internal/eval"
	"github.com/vk/gridflow/internal/graph"
	"github.com/zclconf/go-cty/cty"
)

// State is the mutable record of one pipeline execution: the status map,
// the context of resolved stage outputs, and the cancellation flag. It is
// created when a run starts and mutated only by the coordinator driving
// that run; the Engine reads consistent snapshots through the mutex.
type State struct {
	mu      sync.Mutex
	stages  map[string]*stageRecord
	outputs map[string]cty.Value
	inputs  map[string]cty.Value
	phase   Phase
	gates   map[string]chan struct{}

	canceled   atomic.Bool
	cancelCh   chan struct{}
	cancelOnce sync.Once
}

type stageRecord struct {
	status   Status
	cause    error
	attempts int
}

func newState(g *graph.Graph, inputs map[string]cty.Value) *State {
	s := &State{
		stages:   make(map[string]*stageRecord, g.Len()),
		outputs:  make(map[string]cty.Value),
		inputs:   inputs,
		phase:    PhaseRunning,
		gates:    make(map[string]chan struct{}),
		cancelCh: make(chan struct{}),
	}
	for _, id := range g.IDs() {
		s.stages[id] = &stageRecord{status: StatusPending}
	}
	return s
}

// addStages registers stages created by a mid-run fork expansion.
func (s *State) addStages(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, exists := s.stages[id]; !exists {
			s.stages[id] = &stageRecord{status: StatusPending}
		}
	}
}

// Cancel requests cooperative cancellation of the run. It is checked at
// wave boundaries, before each dispatch, and at executor attempt
// boundaries; a running attempt is allowed to reach its own timeout.
func (s *State) Cancel() {
	s.cancelOnce.Do(func() {
		s.canceled.Store(true)
		close(s.cancelCh)
	})
}

// Canceled implements executor.CancelToken.
func (s *State) Canceled() bool { return s.canceled.Load() }

func (s *State) status(id string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.stages[id]; ok {
		return rec.status
	}
	return ""
}

// transition moves a stage to a new status, enforcing the lifecycle state
// machine. Attempting to leave a terminal state reports false and changes
// nothing.
func (s *State) transition(id string, to Status, cause error, attempts int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.stages[id]
	if !ok || !canTransition(rec.status, to) {
		return false
	}
	rec.status = to
	if cause != nil {
		rec.cause = cause
	}
	if attempts > 0 {
		rec.attempts = attempts
	}
	return true
}

// markPendingAs transitions a stage only if it is still pending.
func (s *State) markPendingAs(id string, to Status, cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.stages[id]
	if !ok || rec.status != StatusPending || !canTransition(StatusPending, to) {
		return false
	}
	rec.status = to
	rec.cause = cause
	return true
}

// cancelAllPending marks every still-pending stage canceled, recording the
// given cause. Used by both fail-fast and external cancellation.
func (s *State) cancelAllPending(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.stages {
		if rec.status == StatusPending {
			rec.status = StatusCanceled
			rec.cause = cause
		}
	}
}

func (s *State) setOutput(id string, v cty.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[id] = v
}

// scope returns the evaluation scope of the run: a copy of the outputs of
// stages that reached a terminal state, plus the run's initial inputs.
func (s *State) scope() eval.Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	stages := make(map[string]cty.Value, len(s.outputs))
	for k, v := range s.outputs {
		stages[k] = v
	}
	return eval.Scope{Stages: stages, Run: s.inputs}
}

// Snapshot returns the externally visible status of every stage.
func (s *State) Snapshot() map[string]StageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]StageStatus, len(s.stages))
	for id, rec := range s.stages {
		st := StageStatus{Status: rec.status, Attempts: rec.attempts}
		if rec.cause != nil {
			st.Cause = rec.cause.Error()
		}
		out[id] = st
	}
	return out
}

// failedStages returns the sorted ids of stages that ended failed.
func (s *State) failedStages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, rec := range s.stages {
		if rec.status == StatusFailed {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Phase returns the overall run phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *State) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// armGate registers a canary pause point for the stage and flips the run
// into the awaiting-promotion phase. The returned channel is closed by
// resumeGate.
func (s *State) armGate(id string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	s.gates[id] = gate
	s.phase = PhaseAwaitingPromotion
	return gate
}

// resumeGate releases a paused canary stage.
func (s *State) resumeGate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate, ok := s.gates[id]
	if !ok {
		return fmt.Errorf("stage %q is not awaiting promotion", id)
	}
	delete(s.gates, id)
	s.phase = PhaseRunning
	close(gate)
	return nil
}
