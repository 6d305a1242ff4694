// Package expr compiles and evaluates the expressions that select a
// Condition outcome.
//
// Expressions use HCL native syntax and are evaluated against working
// memory exposed as variables. Only a fixed set of pure functions is
// available, so evaluation can neither perform I/O nor reach host code.
package expr

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// ErrEmptyOutcome is returned when an expression evaluates to null or an
// empty string.
var ErrEmptyOutcome = errors.New("expression evaluated to an empty outcome")

var functions = map[string]function.Function{
	"lower":     stdlib.LowerFunc,
	"upper":     stdlib.UpperFunc,
	"trimspace": stdlib.TrimSpaceFunc,
	"length":    stdlib.LengthFunc,
	"format":    stdlib.FormatFunc,
	"join":      stdlib.JoinFunc,
	"contains":  stdlib.ContainsFunc,
	"coalesce":  stdlib.CoalesceFunc,
}

// Expression is a compiled outcome expression.
type Expression struct {
	source string
	expr   hclsyntax.Expression
	refs   []hcl.Traversal
	funcs  []string
}

// Compile parses a plain expression such as `category.label`.
func Compile(src string) (*Expression, error) {
	e, diags := hclsyntax.ParseExpression([]byte(src), "expression", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid expression %q: %w", src, diags)
	}
	return newExpression(src, e)
}

// CompileTemplate parses a string template such as `${kind}-${size}`.
func CompileTemplate(src string) (*Expression, error) {
	e, diags := hclsyntax.ParseTemplate([]byte(src), "expression_template", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid expression template %q: %w", src, diags)
	}
	return newExpression(src, e)
}

func newExpression(src string, e hclsyntax.Expression) (*Expression, error) {
	refs, funcs := extractReferencesAndFunctions(e)
	for _, name := range funcs {
		if _, ok := functions[name]; !ok {
			return nil, fmt.Errorf("expression %q calls unsupported function %q", src, name)
		}
	}
	return &Expression{source: src, expr: e, refs: refs, funcs: funcs}, nil
}

// Source returns the text the expression was compiled from.
func (e *Expression) Source() string {
	return e.source
}

// Roots returns the distinct variable names the expression reads, sorted.
func (e *Expression) Roots() []string {
	seen := make(map[string]struct{})
	var roots []string
	for _, t := range e.refs {
		name := t.RootName()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		roots = append(roots, name)
	}
	sort.Strings(roots)
	return roots
}

// Functions returns the distinct function names the expression calls, sorted.
func (e *Expression) Functions() []string {
	return e.funcs
}

// Evaluate computes the outcome key.
func (e *Expression) Evaluate(vars map[string]cty.Value) (string, error) {
	ctx := &hcl.EvalContext{Variables: vars, Functions: functions}
	v, diags := e.expr.Value(ctx)
	if diags.HasErrors() {
		return "", fmt.Errorf("evaluating %q: %w", e.source, diags)
	}
	if v.IsNull() {
		return "", ErrEmptyOutcome
	}
	if !v.IsWhollyKnown() {
		return "", fmt.Errorf("evaluating %q: result is unknown", e.source)
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("evaluating %q: outcome must be a string, got %s", e.source, v.Type().FriendlyName())
	}
	if s.AsString() == "" {
		return "", ErrEmptyOutcome
	}
	return s.AsString(), nil
}

// traversalKey is a canonical string form of a traversal.
func traversalKey(t hcl.Traversal) string {
	return string(hclwrite.TokensForTraversal(t).Bytes())
}

// extractReferencesAndFunctions returns the unique variable traversals and
// function names of e, sorted for deterministic output.
func extractReferencesAndFunctions(e hclsyntax.Expression) ([]hcl.Traversal, []string) {
	traversals := make(map[string]hcl.Traversal)
	for _, t := range e.Variables() {
		traversals[traversalKey(t)] = t
	}

	funcSet := make(map[string]struct{})
	hclsyntax.VisitAll(e, func(n hclsyntax.Node) hcl.Diagnostics {
		if call, ok := n.(*hclsyntax.FunctionCallExpr); ok {
			funcSet[call.Name] = struct{}{}
		}
		return nil
	})

	keys := make([]string, 0, len(traversals))
	for k := range traversals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	refs := make([]hcl.Traversal, 0, len(keys))
	for _, k := range keys {
		refs = append(refs, traversals[k])
	}

	funcs := make([]string, 0, len(funcSet))
	for f := range funcSet {
		funcs = append(funcs, f)
	}
	sort.Strings(funcs)
	return refs, funcs
}
