package operator

import (
	"context"
	"fmt"

	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/memory"
	"github.com/vk/pipegrid/internal/pipe"
	"github.com/vk/pipegrid/internal/registry"
	"github.com/vk/pipegrid/internal/template"
	"github.com/zclconf/go-cty/cty"
)

// Scope is the read side of working memory seen by an operator.
type Scope interface {
	Lookup(name string) (*memory.Stuff, error)
}

// Operator runs one leaf pipe. The returned stuff is unnamed; the caller
// binds it under the declared result name.
type Operator interface {
	Invoke(ctx context.Context, def *pipe.Definition, scope Scope) (*memory.Stuff, error)
}

// Dispatcher routes leaf pipes to the operator for their kind and enforces
// the input and output contracts around the call.
type Dispatcher struct {
	concepts *concept.Registry

	llm     Operator
	extract Operator
	imgGen  Operator
	compose Operator
	fn      Operator
}

// Option configures a Dispatcher.
type Option func(*dispatcherOptions)

type dispatcherOptions struct {
	tagStyle template.TagStyle
}

// WithTagStyle sets the default tag style for block markers.
func WithTagStyle(style template.TagStyle) Option {
	return func(o *dispatcherOptions) { o.tagStyle = style }
}

// NewDispatcher wires the operators of every leaf kind.
func NewDispatcher(concepts *concept.Registry, funcs *registry.Registry, backends Backends, opts ...Option) *Dispatcher {
	o := dispatcherOptions{tagStyle: template.TagTicks}
	for _, opt := range opts {
		opt(&o)
	}
	resolver := template.NewResolver(concepts, o.tagStyle)
	return &Dispatcher{
		concepts: concepts,
		llm:      &LLM{Client: backends.LLM, Resolver: resolver},
		extract:  &Extract{Backend: backends.Extract, Concepts: concepts},
		imgGen:   &ImgGen{Backend: backends.ImgGen},
		compose:  &Compose{Resolver: resolver},
		fn:       &Func{Funcs: funcs},
	}
}

// Invoke checks the inputs of def, runs its operator and returns the
// checked, conformed output.
func (d *Dispatcher) Invoke(ctx context.Context, def *pipe.Definition, scope Scope) (*memory.Stuff, error) {
	sel := &selector{d: d}
	if err := def.Spec.Accept(sel); err != nil {
		return nil, fmt.Errorf("pipe '%s': %w", def.Code, err)
	}
	if err := CheckInputs(d.concepts, def, scope); err != nil {
		return nil, err
	}
	out, err := sel.op.Invoke(ctx, def, scope)
	if err != nil {
		return nil, err
	}
	return CheckOutput(d.concepts, def, out)
}

// selector picks the operator for a spec. Controllers are not dispatched.
type selector struct {
	d  *Dispatcher
	op Operator
}

func controllerError(k pipe.Kind) error {
	return fmt.Errorf("%s is a controller kind and has no operator", k)
}

func (s *selector) VisitSequence(*pipe.SequenceSpec) error   { return controllerError(pipe.KindSequence) }
func (s *selector) VisitParallel(*pipe.ParallelSpec) error   { return controllerError(pipe.KindParallel) }
func (s *selector) VisitCondition(*pipe.ConditionSpec) error { return controllerError(pipe.KindCondition) }
func (s *selector) VisitBatch(*pipe.BatchSpec) error         { return controllerError(pipe.KindBatch) }
func (s *selector) VisitLLM(*pipe.LLMSpec) error             { s.op = s.d.llm; return nil }
func (s *selector) VisitExtract(*pipe.ExtractSpec) error     { s.op = s.d.extract; return nil }
func (s *selector) VisitImgGen(*pipe.ImgGenSpec) error       { s.op = s.d.imgGen; return nil }
func (s *selector) VisitCompose(*pipe.ComposeSpec) error     { s.op = s.d.compose; return nil }
func (s *selector) VisitFunc(*pipe.FuncSpec) error           { s.op = s.d.fn; return nil }

// CheckInputs verifies that every declared input of def is bound in scope
// with a compatible concept and multiplicity.
func CheckInputs(concepts *concept.Registry, def *pipe.Definition, scope Scope) error {
	for _, in := range def.Inputs {
		s, err := scope.Lookup(in.Name)
		if err != nil {
			return &InputContractError{Pipe: def.Code, Variable: in.Name, Reason: "not bound", Err: err}
		}
		if !concepts.IsCompatible(in.Concept, s.Concept) {
			return &InputContractError{
				Pipe:     def.Code,
				Variable: in.Name,
				Reason:   fmt.Sprintf("concept '%s' is not compatible with '%s'", s.Concept, in.Concept),
			}
		}
		if !in.Multiplicity.Accepts(s.Multiplicity) {
			return &InputContractError{
				Pipe:     def.Code,
				Variable: in.Name,
				Reason:   fmt.Sprintf("multiplicity %s does not satisfy %s", s.Multiplicity, in.Multiplicity),
			}
		}
		if err := in.Multiplicity.Check(s.Len()); err != nil {
			return &InputContractError{Pipe: def.Code, Variable: in.Name, Reason: "wrong item count", Err: err}
		}
	}
	return nil
}

// CheckOutput verifies that out carries exactly the declared output concept
// and multiplicity, and returns a copy whose items are conformed to the
// concept.
func CheckOutput(concepts *concept.Registry, def *pipe.Definition, out *memory.Stuff) (*memory.Stuff, error) {
	expected := def.Output.String()
	if out == nil {
		return nil, &OutputContractViolationError{Pipe: def.Code, Expected: expected, Actual: "nothing"}
	}
	actual := out.Multiplicity.Format(out.Concept)
	if out.Concept != def.Output.Concept || out.Multiplicity != def.Output.Multiplicity {
		return nil, &OutputContractViolationError{Pipe: def.Code, Expected: expected, Actual: actual}
	}
	if err := def.Output.Multiplicity.Check(out.Len()); err != nil {
		return nil, &OutputContractViolationError{Pipe: def.Code, Expected: expected, Actual: actual, Err: err}
	}
	items := make([]cty.Value, len(out.Items))
	for i, item := range out.Items {
		v, err := concepts.Conform(def.Output.Concept, item)
		if err != nil {
			reason := ""
			if out.IsList() {
				reason = fmt.Sprintf("item %d", i)
			}
			return nil, &OutputContractViolationError{Pipe: def.Code, Expected: expected, Actual: actual, Reason: reason, Err: err}
		}
		items[i] = v
	}
	checked := *out
	checked.Items = items
	checked.ProducedBy = def.Code
	return &checked, nil
}
