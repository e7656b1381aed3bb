package run

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/eval"
	"github.com/vk/gridflow/internal/executor"
	"github.com/vk/gridflow/internal/graph"
	"github.com/vk/gridflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// DefaultConcurrency bounds stage parallelism for runs that do not set
// their own limit.
const DefaultConcurrency = 8

// Options configures one run submission.
type Options struct {
	// Concurrency bounds the number of stages in flight at once within the
	// run. Zero selects DefaultConcurrency.
	Concurrency int
	// Inputs are the initial run inputs, exposed to expressions as
	// `run.<key>`.
	Inputs map[string]cty.Value
}

// Engine is the pipeline submission surface. One engine serves many
// concurrent runs; each run gets an exclusively owned State while all runs
// of one pipeline version share the same immutable graph.
type Engine struct {
	exec      *executor.Executor
	evaluator eval.Evaluator

	mu   sync.Mutex
	runs map[string]*activeRun
}

type activeRun struct {
	state *State
	done  chan struct{}
	err   error // written once before done is closed
}

// NewEngine builds an engine dispatching task stages against the given
// registry.
func NewEngine(reg *registry.Registry, evaluator eval.Evaluator) *Engine {
	return &Engine{
		exec:      executor.New(evaluator, reg),
		evaluator: evaluator,
		runs:      make(map[string]*activeRun),
	}
}

// SubmitRun starts a new run of the graph and returns its id. The run
// proceeds in the background; its lifetime is decoupled from the submitting
// context except for the logger carried in it.
func (e *Engine) SubmitRun(ctx context.Context, g *graph.Graph, opts Options) string {
	id := uuid.NewString()
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	state := newState(g, opts.Inputs)
	coord := NewCoordinator(g, e.exec, e.evaluator, state, concurrency)
	r := &activeRun{state: state, done: make(chan struct{})}

	e.mu.Lock()
	e.runs[id] = r
	e.mu.Unlock()

	logger := ctxlog.FromContext(ctx).With("run", id)
	runCtx := ctxlog.WithLogger(context.WithoutCancel(ctx), logger)
	go func() {
		defer close(r.done)
		r.err = coord.Run(runCtx)
	}()
	return id
}

func (e *Engine) lookup(id string) (*activeRun, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[id]
	if !ok {
		return nil, ErrUnknownRun
	}
	return r, nil
}

// RunStatus returns the per-stage status snapshot of a run, including each
// stage's terminal cause and attempt count.
func (e *Engine) RunStatus(id string) (map[string]StageStatus, error) {
	r, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	return r.state.Snapshot(), nil
}

// RunPhase returns the overall phase of a run.
func (e *Engine) RunPhase(id string) (Phase, error) {
	r, err := e.lookup(id)
	if err != nil {
		return "", err
	}
	return r.state.Phase(), nil
}

// CancelRun requests cooperative cancellation of a run. Already-running
// stages finish or reach their own timeout; everything still pending is
// canceled at the next check point.
func (e *Engine) CancelRun(id string) error {
	r, err := e.lookup(id)
	if err != nil {
		return err
	}
	r.state.Cancel()
	return nil
}

// ResumeCanary promotes a canary stage that paused awaiting an external
// signal, letting the run dispatch the remaining items.
func (e *Engine) ResumeCanary(id, stageID string) error {
	r, err := e.lookup(id)
	if err != nil {
		return err
	}
	return r.state.resumeGate(stageID)
}

// Wait blocks until the run reaches a terminal phase or the context ends,
// returning the run's summary error.
func (e *Engine) Wait(ctx context.Context, id string) error {
	r, err := e.lookup(id)
	if err != nil {
		return err
	}
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
