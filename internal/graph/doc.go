// Package graph builds and validates the immutable dependency graph of a
// pipeline.
//
// Build assembles a set of stage models into a Graph, reporting every
// structural problem it finds in one pass: unknown dependency references,
// cycles, joins without a fan-in set, and broken compensation references.
// It returns either a fully valid graph or the complete error list, never a
// partially valid graph.
//
// A Graph is immutable after Build and safe to share read-only between
// concurrent runs of the same pipeline version. Per-run state lives
// elsewhere; the graph itself is never mutated by a run.
package graph
