// Package multiplicity models the cardinality annotation carried by a
// concept binding: exactly one value, an unbounded list, or a list of
// exactly N values.
//
// The textual form is a bracket suffix on a concept reference: "Text" is a
// single value, "Text[]" a list of any length and "Text[3]" a list of three.
package multiplicity
