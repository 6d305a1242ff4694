package interpreter

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/expr"
	"github.com/vk/pipegrid/internal/memory"
	"github.com/vk/pipegrid/internal/multiplicity"
	"github.com/vk/pipegrid/internal/operator"
	"github.com/vk/pipegrid/internal/pipe"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"
)

// runner executes the kind-specific part of one invocation. out is the
// value to merge under the invocation's result, or nil when the pipe binds
// no result of its own. exports are the extra variables the pipe exposes
// to its caller.
type runner struct {
	in      *Interpreter
	ctx     context.Context
	inv     *invocation
	scope   *memory.Memory
	out     *memory.Stuff
	exports []*memory.Stuff
}

// run executes inv on a private scope holding only the inputs it declares,
// taken from from. A root sequence runs on from itself.
func (in *Interpreter) run(ctx context.Context, inv *invocation, from *memory.Memory) (*memory.Stuff, []*memory.Stuff, error) {
	scope := from
	if !inv.inPlace {
		var err error
		if scope, err = from.Isolate(inv.def.InputNames()); err != nil {
			return nil, nil, err
		}
	}
	r := &runner{in: in, ctx: ctx, inv: inv, scope: scope}
	if err := inv.def.Spec.Accept(r); err != nil {
		return nil, nil, err
	}
	return r.out, r.exports, nil
}

func (r *runner) dispatch() error {
	out, err := r.in.dispatch.Invoke(r.ctx, r.inv.def, r.scope)
	if err != nil {
		return err
	}
	r.out = out
	return nil
}

func (r *runner) VisitLLM(*pipe.LLMSpec) error         { return r.dispatch() }
func (r *runner) VisitExtract(*pipe.ExtractSpec) error { return r.dispatch() }
func (r *runner) VisitImgGen(*pipe.ImgGenSpec) error   { return r.dispatch() }
func (r *runner) VisitCompose(*pipe.ComposeSpec) error { return r.dispatch() }
func (r *runner) VisitFunc(*pipe.FuncSpec) error       { return r.dispatch() }

func (r *runner) VisitSequence(s *pipe.SequenceSpec) error {
	if err := operator.CheckInputs(r.in.concepts, r.inv.def, r.scope); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return errors.New("sequence has no steps")
	}

	work := r.scope
	for i, step := range s.Steps {
		child, err := r.in.library.Get(step.Pipe)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if step.IsBatch() {
			if err := r.in.runInlineBatch(r.ctx, r.inv, child, step, i, work); err != nil {
				return err
			}
			continue
		}
		inv := r.inv.child(child, step.Result)
		inv.step = &i
		if err := r.in.invoke(r.ctx, inv, work); err != nil {
			return err
		}
	}

	if r.inv.inPlace {
		return nil
	}
	last, err := work.Lookup(s.Steps[len(s.Steps)-1].Result)
	if err != nil {
		return err
	}
	r.out = last
	return nil
}

func (r *runner) VisitParallel(s *pipe.ParallelSpec) error {
	def := r.inv.def
	if err := operator.CheckInputs(r.in.concepts, def, r.scope); err != nil {
		return err
	}
	if len(s.Branches) == 0 {
		return errors.New("parallel has no branches")
	}

	results := make([]*memory.Stuff, len(s.Branches))
	g, gctx := errgroup.WithContext(r.ctx)
	if r.in.maxConcurrency > 0 {
		g.SetLimit(r.in.maxConcurrency)
	}
	for i, b := range s.Branches {
		g.Go(func() error {
			child, err := r.in.library.Get(b.Pipe)
			if err != nil {
				return fmt.Errorf("branch '%s': %w", b.Result, err)
			}
			into, err := memory.New()
			if err != nil {
				return err
			}
			inv := r.inv.child(child, b.Result)
			inv.branch = b.Result
			inv.discardExports = true
			if err := r.in.invokeInto(gctx, inv, r.scope, into); err != nil {
				return err
			}
			out, err := into.Lookup(b.Result)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var combined *memory.Stuff
	if s.CombinedOutput != "" {
		attrs := make(map[string]cty.Value, len(s.Branches))
		for i, b := range s.Branches {
			attrs[b.Result] = results[i].Value()
		}
		v, err := r.in.concepts.Conform(s.CombinedOutput, cty.ObjectVal(attrs))
		if err != nil {
			return &operator.OutputContractViolationError{
				Pipe:     def.Code,
				Expected: def.Output.String(),
				Actual:   "combined branch outputs",
				Err:      err,
			}
		}
		combined = &memory.Stuff{
			Concept:      s.CombinedOutput,
			Multiplicity: multiplicity.Single,
			Items:        []cty.Value{v},
			ProducedBy:   def.Code,
		}
	}

	if s.AddEachOutput {
		r.exports = append(r.exports, results...)
	}
	r.out = combined
	return nil
}

func (r *runner) VisitCondition(s *pipe.ConditionSpec) error {
	def := r.inv.def
	if err := operator.CheckInputs(r.in.concepts, def, r.scope); err != nil {
		return err
	}

	src, compile := s.Expression, expr.Compile
	if src == "" {
		src, compile = s.ExpressionTemplate, expr.CompileTemplate
	}
	e, err := compile(src)
	if err != nil {
		return &ConditionEvaluationError{Pipe: def.Code, Expression: src, Err: err}
	}
	outcome, err := e.Evaluate(r.scope.Variables())
	if err != nil {
		return &ConditionEvaluationError{Pipe: def.Code, Expression: src, Err: err}
	}

	chosen, ok := s.Outcomes[outcome]
	if !ok {
		if s.DefaultOutcome == "" || s.DefaultOutcome == pipe.FailOutcome {
			return &UnmatchedOutcomeError{Pipe: def.Code, Outcome: outcome, Known: outcomeKeys(s.Outcomes)}
		}
		chosen = s.DefaultOutcome
	}
	ctxlog.FromContext(r.ctx).Debug("Condition outcome resolved.", "outcome", outcome, "selected", chosen, "matched", ok)

	child, err := r.in.library.Get(chosen)
	if err != nil {
		return err
	}
	branch := r.scope
	var alias *memory.Stuff
	if s.AliasOutcomeTo != "" {
		alias = &memory.Stuff{
			Name:         s.AliasOutcomeTo,
			Concept:      concept.Text,
			Multiplicity: multiplicity.Single,
			Items:        []cty.Value{cty.StringVal(outcome)},
			ProducedBy:   def.Code,
		}
		if branch, err = r.scope.Fork(alias); err != nil {
			return err
		}
	}

	into, err := memory.New()
	if err != nil {
		return err
	}
	inv := r.inv.child(child, r.inv.result)
	inv.branch = outcome
	if err := r.in.invokeInto(r.ctx, inv, branch, into); err != nil {
		return err
	}

	// The alias and whatever the chosen pipe exposes reach the caller
	// together with the result, once the chosen pipe has succeeded.
	if alias != nil {
		r.exports = append(r.exports, alias)
	}
	for _, name := range into.Names() {
		bound, err := into.Lookup(name)
		if err != nil {
			return err
		}
		if name == r.inv.result {
			r.out = bound
			continue
		}
		r.exports = append(r.exports, bound)
	}
	return nil
}

func (r *runner) VisitBatch(s *pipe.BatchSpec) error {
	def := r.inv.def
	if err := operator.CheckInputs(r.in.concepts, def, r.scope); err != nil {
		return err
	}
	branch, err := r.in.library.Get(s.Branch)
	if err != nil {
		return err
	}
	list, err := r.scope.Lookup(s.InputListName)
	if err != nil {
		return err
	}
	values, err := r.in.mapBatch(r.ctx, r.inv, branch, list, s.InputItemName, r.inv.result, r.scope)
	if err != nil {
		return err
	}
	if err := def.Output.Multiplicity.Check(len(values)); err != nil {
		return &operator.OutputContractViolationError{
			Pipe:     def.Code,
			Expected: def.Output.String(),
			Actual:   fmt.Sprintf("%d item(s)", len(values)),
			Err:      err,
		}
	}
	r.out = &memory.Stuff{
		Concept:      def.Output.Concept,
		Multiplicity: def.Output.Multiplicity,
		Items:        values,
		ProducedBy:   def.Code,
	}
	return nil
}

// runInlineBatch runs a sequence step that declares batch_over and
// batch_as, binding the ordered outputs under the step result.
func (in *Interpreter) runInlineBatch(ctx context.Context, parent *invocation, child *pipe.Definition, step pipe.Step, position int, scope *memory.Memory) error {
	list, err := scope.Lookup(step.BatchOver)
	if err != nil {
		return fmt.Errorf("step %d: %w", position, err)
	}
	values, err := in.mapBatch(ctx, parent, child, list, step.BatchAs, step.Result, scope)
	if err != nil {
		return err
	}
	return scope.MergeResult(step.Result, &memory.Stuff{
		Concept:      child.Output.Concept,
		Multiplicity: multiplicity.List(),
		Items:        values,
		ProducedBy:   child.Code,
	})
}

// mapBatch invokes branch once per element of list, concurrently, each on a
// fork of scope binding the element as itemName. It returns the outputs in
// element order, or the first failure.
func (in *Interpreter) mapBatch(ctx context.Context, parent *invocation, branch *pipe.Definition, list *memory.Stuff, itemName, resultName string, scope *memory.Memory) ([]cty.Value, error) {
	if !list.IsList() {
		return nil, fmt.Errorf("cannot batch over '%s': it holds a single %s", list.Name, list.Concept)
	}
	ctxlog.FromContext(ctx).Debug("Starting batch.", "branch", branch.Code, "items", list.Len())

	values := make([]cty.Value, list.Len())
	g, gctx := errgroup.WithContext(ctx)
	if in.maxConcurrency > 0 {
		g.SetLimit(in.maxConcurrency)
	}
	for i := range list.Items {
		g.Go(func() error {
			fork, err := scope.Fork(list.Item(itemName, i))
			if err != nil {
				return err
			}
			into, err := memory.New()
			if err != nil {
				return err
			}
			inv := parent.child(branch, resultName)
			inv.index = &i
			inv.discardExports = true
			if err := in.invokeInto(gctx, inv, fork, into); err != nil {
				return err
			}
			out, err := into.Lookup(resultName)
			if err != nil {
				return err
			}
			if out.IsList() || out.Len() != 1 {
				return &operator.OutputContractViolationError{
					Pipe:     branch.Code,
					Expected: "a single value per element",
					Actual:   out.Multiplicity.Format(out.Concept),
				}
			}
			values[i] = out.Items[0]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}
