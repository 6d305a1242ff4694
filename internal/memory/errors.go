package memory

import "fmt"

// DuplicateBindingError is returned when a name is bound twice in a scope.
type DuplicateBindingError struct {
	Name string
}

func (e *DuplicateBindingError) Error() string {
	return fmt.Sprintf("variable %q is already bound in this scope", e.Name)
}

// UnboundVariableError is returned by Lookup for a name with no binding.
type UnboundVariableError struct {
	Name string
}

func (e *UnboundVariableError) Error() string {
	return fmt.Sprintf("variable %q is not bound", e.Name)
}
