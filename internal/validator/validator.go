package validator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dominikbraun/graph"
	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/pipe"
)

type validator struct {
	concepts *concept.Registry
	lib      *pipe.Library
	errs     []error
}

func (v *validator) add(err error) {
	v.errs = append(v.errs, err)
}

func (v *validator) failf(code, format string, args ...any) {
	v.add(&DefinitionError{Pipe: code, Reason: fmt.Sprintf(format, args...)})
}

func (v *validator) result() error {
	if len(v.errs) == 0 {
		return nil
	}
	return &Error{Errs: v.errs}
}

// Validate checks every pipe reachable from root.
func Validate(ctx context.Context, concepts *concept.Registry, lib *pipe.Library, root string) error {
	logger := ctxlog.FromContext(ctx)
	if _, err := lib.Get(root); err != nil {
		return err
	}

	v := &validator{concepts: concepts, lib: lib}
	g := v.buildGraph()

	var codes []string
	err := graph.DFS(g, root, func(code string) bool {
		codes = append(codes, code)
		return false
	})
	if err != nil {
		return fmt.Errorf("walking pipe graph from '%s': %w", root, err)
	}
	sort.Strings(codes)
	logger.Debug("Validating pipe graph.", "root", root, "pipes", len(codes))

	for _, code := range codes {
		def, _ := lib.Get(code)
		v.check(def)
	}
	if err := v.result(); err != nil {
		return err
	}
	logger.Debug("Validation passed.", "root", root, "pipes", len(codes))
	return nil
}

// ValidateLibrary checks every pipe of the library, reachable or not.
func ValidateLibrary(ctx context.Context, concepts *concept.Registry, lib *pipe.Library) error {
	logger := ctxlog.FromContext(ctx)
	v := &validator{concepts: concepts, lib: lib}
	v.buildGraph()
	for _, code := range lib.Codes() {
		def, _ := lib.Get(code)
		v.check(def)
	}
	if err := v.result(); err != nil {
		return err
	}
	logger.Debug("Library validation passed.", "pipes", lib.Len())
	return nil
}

// buildGraph links every pipe to the pipes it invokes. Unknown references
// and recursion are recorded as errors.
func (v *validator) buildGraph() graph.Graph[string, string] {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	codes := v.lib.Codes()
	for _, code := range codes {
		_ = g.AddVertex(code)
	}
	for _, code := range codes {
		def, _ := v.lib.Get(code)
		for _, child := range pipe.Children(def) {
			if _, err := v.lib.Get(child); err != nil {
				v.failf(code, "invokes unknown pipe '%s'", child)
				continue
			}
			err := g.AddEdge(code, child)
			switch {
			case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				v.failf(code, "invoking '%s' creates a cycle", child)
			default:
				v.failf(code, "linking to '%s': %v", child, err)
			}
		}
	}
	return g
}

// check validates one definition on its own and against the pipes it
// invokes.
func (v *validator) check(def *pipe.Definition) {
	seen := make(map[string]struct{}, len(def.Inputs))
	for _, in := range def.Inputs {
		if _, dup := seen[in.Name]; dup {
			v.failf(def.Code, "input '%s' is declared twice", in.Name)
		}
		seen[in.Name] = struct{}{}
		if _, err := v.concepts.Resolve(in.Concept); err != nil {
			v.add(fmt.Errorf("pipe '%s': input '%s': %w", def.Code, in.Name, err))
		}
	}
	if def.Output.Concept != "" {
		if _, err := v.concepts.Resolve(def.Output.Concept); err != nil {
			v.add(fmt.Errorf("pipe '%s': output: %w", def.Code, err))
		}
	} else if def.Kind() != pipe.KindParallel {
		v.failf(def.Code, "output is required")
	}
	_ = def.Spec.Accept(&checker{v: v, def: def})
}

// scope maps the variables bound at one point of a controller to their
// declared bindings.
type scope map[string]pipe.Binding

func inputScope(def *pipe.Definition) scope {
	s := make(scope, len(def.Inputs))
	for _, in := range def.Inputs {
		s[in.Name] = in.Binding
	}
	return s
}

func (s scope) with(name string, b pipe.Binding) scope {
	out := make(scope, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[name] = b
	return out
}

// outputOf returns what invoking def binds under its result name. A
// parallel without a combined output binds nothing of its own.
func outputOf(def *pipe.Definition) (pipe.Binding, bool) {
	if s, ok := def.Spec.(*pipe.ParallelSpec); ok && s.CombinedOutput == "" {
		return pipe.Binding{}, false
	}
	return def.Output, true
}

// exports returns the extra variables def binds into the scope it is
// invoked in, besides its own result.
func (v *validator) exports(def *pipe.Definition) scope {
	return v.exportsOf(def, make(map[string]struct{}))
}

func (v *validator) exportsOf(def *pipe.Definition, seen map[string]struct{}) scope {
	out := make(scope)
	if _, cycle := seen[def.Code]; cycle {
		return out
	}
	seen[def.Code] = struct{}{}
	defer delete(seen, def.Code)

	switch s := def.Spec.(type) {
	case *pipe.ParallelSpec:
		if !s.AddEachOutput {
			break
		}
		for _, b := range s.Branches {
			child, err := v.lib.Get(b.Pipe)
			if err != nil {
				continue
			}
			if o, ok := outputOf(child); ok {
				out[b.Result] = o
			}
		}
	case *pipe.ConditionSpec:
		if s.AliasOutcomeTo != "" {
			out[s.AliasOutcomeTo] = singleText
		}
		// Outcome pipes must agree on what they expose, so the first known
		// one speaks for all of them.
		for _, code := range pipe.Children(def) {
			child, err := v.lib.Get(code)
			if err != nil {
				continue
			}
			for name, b := range v.exportsOf(child, seen) {
				out[name] = b
			}
			break
		}
	}
	return out
}

// consume checks that every input of child is bound in s with a compatible
// binding.
func (v *validator) consume(parent, child *pipe.Definition, s scope, step *int) {
	for _, in := range child.Inputs {
		b, ok := s[in.Name]
		if !ok {
			v.add(&MissingInputVariableError{Pipe: parent.Code, Consumer: child.Code, Step: step, Variable: in.Name})
			continue
		}
		if !v.concepts.IsCompatible(in.Concept, b.Concept) || !in.Multiplicity.Accepts(b.Multiplicity) {
			v.add(&IncompatibleInputError{
				Pipe:     parent.Code,
				Consumer: child.Code,
				Variable: in.Name,
				Expected: in.Binding.String(),
				Actual:   b.String(),
			})
		}
	}
}
