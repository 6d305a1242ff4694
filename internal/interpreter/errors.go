package interpreter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vk/pipegrid/internal/pipe"
)

// PipeError annotates a failure with the pipe it happened in and its
// position in the enclosing controller.
type PipeError struct {
	PipeCode string
	Kind     pipe.Kind
	// Step is the position in the enclosing sequence, if any.
	Step *int
	// Index is the element position in the enclosing batch, if any.
	Index *int
	// Branch is the parallel branch result or the condition outcome that
	// led to this pipe.
	Branch string
	Err    error
}

func (e *PipeError) Error() string {
	var where []string
	where = append(where, string(e.Kind))
	if e.Step != nil {
		where = append(where, fmt.Sprintf("step %d", *e.Step))
	}
	if e.Index != nil {
		where = append(where, fmt.Sprintf("element %d", *e.Index))
	}
	if e.Branch != "" {
		where = append(where, fmt.Sprintf("branch '%s'", e.Branch))
	}
	return fmt.Sprintf("pipe '%s' (%s): %v", e.PipeCode, strings.Join(where, ", "), e.Err)
}

func (e *PipeError) Unwrap() error { return e.Err }

// UnmatchedOutcomeError is returned by a condition whose outcome has no
// entry and whose default outcome is "fail".
type UnmatchedOutcomeError struct {
	Pipe    string
	Outcome string
	Known   []string
}

func (e *UnmatchedOutcomeError) Error() string {
	return fmt.Sprintf("condition '%s': outcome '%s' matches none of [%s] and the default outcome is '%s'",
		e.Pipe, e.Outcome, strings.Join(e.Known, ", "), pipe.FailOutcome)
}

// ConditionEvaluationError is returned when a condition expression cannot
// be evaluated to a non-empty outcome.
type ConditionEvaluationError struct {
	Pipe       string
	Expression string
	Err        error
}

func (e *ConditionEvaluationError) Error() string {
	return fmt.Sprintf("condition '%s': expression %q: %v", e.Pipe, e.Expression, e.Err)
}

func (e *ConditionEvaluationError) Unwrap() error { return e.Err }

func outcomeKeys(outcomes map[string]string) []string {
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
