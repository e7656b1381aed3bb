// Package model provides the in-memory representation of a pipeline
// definition: the stages, their dependencies, and the policies that govern
// how each stage executes.
//
// The model is built around a few key structures:
//
//   - Stage: one schedulable unit of work. It is the node in the execution
//     graph and captures everything a user can declare about it: its kind,
//     explicit dependencies, an optional guarding condition, and its
//     execution policy.
//
//   - ExecutionPolicy: the timeout, retry, canary, and failure handling
//     configuration of a single stage.
//
//   - ForkSpec / SubworkflowSpec: the branch template of a dynamic fork and
//     the reusable fragment wrapped by a subworkflow stage. Both are expanded
//     into plain stages by the expand package before scheduling.
//
// Most value fields are of type hcl.Expression rather than a primitive Go
// type. Evaluation of conditions and input mappings is deferred until a run
// is in flight, so that a stage's configuration can be derived from the
// output of another stage. The model captures the user's intent as an
// expression; the evaluator resolves it against the run's context.
//
// A Stage is immutable once placed in a graph. Runs never mutate the model;
// expansion produces fresh copies via Clone.
package model
