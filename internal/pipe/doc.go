// Package pipe defines pipe definitions and the library that holds them.
//
// A Definition carries what every pipe has (code, inputs, output) and a
// kind-specific Spec. Spec is a closed tagged union: each kind implements
// Accept by calling the matching Visitor method, so adding a kind is a
// compile error in every Visitor until it is handled.
package pipe
