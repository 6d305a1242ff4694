// Package validator checks a loaded pipe library before anything runs.
//
// It walks the pipe graph reachable from a root, tracks which variables are
// bound at every step of every controller and compares them with what each
// invoked pipe consumes. It never invokes an operator.
package validator
