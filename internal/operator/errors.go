package operator

import (
	"fmt"

	"github.com/vk/pipegrid/internal/pipe"
)

// InputContractError reports a declared input that is missing or does not
// match its binding when an operator is about to run.
type InputContractError struct {
	Pipe     string
	Variable string
	Reason   string
	Err      error
}

func (e *InputContractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipe '%s': input '%s': %s: %v", e.Pipe, e.Variable, e.Reason, e.Err)
	}
	return fmt.Sprintf("pipe '%s': input '%s': %s", e.Pipe, e.Variable, e.Reason)
}

func (e *InputContractError) Unwrap() error { return e.Err }

// OutputContractViolationError reports an operator result that does not
// match the declared output. It is a defect in the operator, not a
// recoverable condition.
type OutputContractViolationError struct {
	Pipe     string
	Expected string
	Actual   string
	Reason   string
	Err      error
}

func (e *OutputContractViolationError) Error() string {
	msg := fmt.Sprintf("pipe '%s': output contract violated: expected %s, got %s", e.Pipe, e.Expected, e.Actual)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OutputContractViolationError) Unwrap() error { return e.Err }

// BackendError wraps a failure reported by an external collaborator.
type BackendError struct {
	Pipe string
	Kind pipe.Kind
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("pipe '%s': %s backend failed: %v", e.Pipe, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
