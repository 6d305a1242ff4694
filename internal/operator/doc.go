// Package operator implements the dispatch contract shared by every leaf
// pipe.
//
// The Dispatcher checks a definition's declared inputs against the scope,
// hands the work to the operator for its kind, and checks that the returned
// value matches the declared output. Operators delegate the actual work to
// backends (LLMClient, Extractor, ImageGenerator); Compose and Func run
// locally.
package operator
