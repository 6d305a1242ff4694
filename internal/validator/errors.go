package validator

import (
	"fmt"
	"strings"
)

// MissingInputVariableError reports a variable consumed before anything
// binds it.
type MissingInputVariableError struct {
	// Pipe is the pipe whose scope lacks the variable.
	Pipe string
	// Consumer is the pipe that reads the variable. It equals Pipe when the
	// pipe reads its own scope, as conditions and templates do.
	Consumer string
	Step     *int
	Variable string
}

func (e *MissingInputVariableError) Error() string {
	where := fmt.Sprintf("pipe '%s'", e.Pipe)
	if e.Step != nil {
		where += fmt.Sprintf(" step %d", *e.Step)
	}
	if e.Consumer != "" && e.Consumer != e.Pipe {
		return fmt.Sprintf("%s: pipe '%s' needs variable '%s', which is not bound at that point", where, e.Consumer, e.Variable)
	}
	return fmt.Sprintf("%s: variable '%s' is not bound", where, e.Variable)
}

// IncompatibleInputError reports a bound variable whose concept or
// multiplicity does not satisfy the consumer's declaration.
type IncompatibleInputError struct {
	Pipe     string
	Consumer string
	Variable string
	Expected string
	Actual   string
}

func (e *IncompatibleInputError) Error() string {
	consumer := e.Consumer
	if consumer == "" {
		consumer = e.Pipe
	}
	return fmt.Sprintf("pipe '%s': pipe '%s' expects variable '%s' as %s, got %s",
		e.Pipe, consumer, e.Variable, e.Expected, e.Actual)
}

// DefinitionError reports a malformed pipe definition.
type DefinitionError struct {
	Pipe   string
	Reason string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("pipe '%s': %s", e.Pipe, e.Reason)
}

// Error aggregates every problem found in one validation pass.
type Error struct {
	Errs []error
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("validation failed:\n- %s", strings.Join(msgs, "\n- "))
}

func (e *Error) Unwrap() []error { return e.Errs }
