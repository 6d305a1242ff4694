package template

import "fmt"

// SyntaxError reports a malformed template.
type SyntaxError struct {
	Offset int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("template syntax error at offset %d: %s", e.Offset, e.Reason)
}

// UntaggedVisualInputError is returned when an image or document input of
// a pipe is never referenced by a marker in its prompt.
type UntaggedVisualInputError struct {
	Pipe     string
	Variable string
}

func (e *UntaggedVisualInputError) Error() string {
	return fmt.Sprintf("pipe '%s': visual input '%s' must be referenced in the prompt with $%s or @%s", e.Pipe, e.Variable, e.Variable, e.Variable)
}

// NonScalarInlineError is returned when structured content is referenced
// inline and cannot be summarized as short text.
type NonScalarInlineError struct {
	Variable string
	Concept  string
	Type     string
}

func (e *NonScalarInlineError) Error() string {
	return fmt.Sprintf("'$%s' of concept %q is %s and cannot be rendered inline; use @%s or reference one of its fields", e.Variable, e.Concept, e.Type, e.Variable)
}
