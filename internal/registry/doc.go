// Package registry maps the function names used by func pipes to compiled
// Go functions.
//
// Modules register their functions during startup. The registry is then
// validated against the loaded pipe library so that every func pipe names a
// function that exists, which prevents a class of runtime errors.
package registry
