// Package hierarchy stores the class graph that multiple dispatch is
// computed over.
//
// Classes are registered as explicit descriptor records (a stable type id
// plus direct base ids) on a Builder. Build validates the graph, assigns
// every class a dense slot in topological order and precomputes the
// transitive closure, producing an immutable Graph whose subtype test is
// a single bit lookup.
package hierarchy
