package concept

import "fmt"

// DuplicateConceptError is returned when a code is registered twice.
type DuplicateConceptError struct {
	Code string
}

func (e *DuplicateConceptError) Error() string {
	return fmt.Sprintf("concept %q is already registered", e.Code)
}

// UnknownConceptError is returned when a code or reference does not resolve.
type UnknownConceptError struct {
	Code   string
	Domain string
}

func (e *UnknownConceptError) Error() string {
	if e.Domain != "" {
		return fmt.Sprintf("unknown concept %q (searched native and %q domains)", e.Code, e.Domain)
	}
	return fmt.Sprintf("unknown concept %q", e.Code)
}

// RefinementCycleError is returned when a refines edge would close a loop.
type RefinementCycleError struct {
	Code   string
	Parent string
}

func (e *RefinementCycleError) Error() string {
	return fmt.Sprintf("concept '%s': refining '%s' creates a refinement cycle", e.Code, e.Parent)
}

// ConformanceError reports content that does not match a concept.
type ConformanceError struct {
	Concept string
	Field   string
	Reason  string
}

func (e *ConformanceError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("content does not conform to concept %q: field %q: %s", e.Concept, e.Field, e.Reason)
	}
	return fmt.Sprintf("content does not conform to concept %q: %s", e.Concept, e.Reason)
}
