// Package run drives pipeline executions end-to-end.
//
// The Engine is the submission surface: it accepts a validated graph, gives
// every execution an independent RunState, and exposes status, cancellation,
// and canary promotion for in-flight runs. Concurrent runs of the same
// pipeline version share the immutable graph and nothing else.
//
// The Coordinator owns one run. It asks the scheduler for execution waves,
// evaluates stage conditions against the run context, dispatches stages to
// the executor under a single counting semaphore, and applies fork/join,
// canary, and failure-policy semantics. Waves are strict barriers: every
// stage of wave N is terminal before wave N+1 starts.
package run
