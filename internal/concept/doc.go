// Package concept holds the named type descriptors that label every value
// flowing through a pipe graph.
//
// A concept is identified by a namespaced code ("domain.Name"). It may refine
// exactly one parent concept and may carry a structure (named, typed
// fields). Refinement chains terminate at one of the native concepts or at a
// structured root. Compatibility between a declared binding and an actual
// value is decided solely by the refinement chain: an actual concept is
// compatible with a binding concept if it is that concept or refines it
// transitively.
//
// The Registry is populated during startup, frozen, and then shared
// read-only by every execution.
package concept
