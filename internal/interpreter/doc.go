// Package interpreter executes pipe graphs.
//
// Execute runs a root pipe against caller-supplied inputs. Controllers
// (sequence, parallel, condition, batch) recurse through invoke; leaf pipes
// are handed to an operator.Operator, normally an operator.Dispatcher.
//
// Every invocation moves through pending, running and then succeeded or
// failed, and on success merges exactly one result into the scope it was
// invoked in. Parallel branches and batch elements run on forks of that
// scope, so nothing they bind leaks to siblings or to the parent except
// their declared result.
package interpreter
