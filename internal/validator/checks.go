package validator

import (
	"strings"

	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/expr"
	"github.com/vk/pipegrid/internal/multiplicity"
	"github.com/vk/pipegrid/internal/operator"
	"github.com/vk/pipegrid/internal/pipe"
	"github.com/vk/pipegrid/internal/script"
	"github.com/vk/pipegrid/internal/template"
)

var singleText = pipe.Binding{Concept: concept.Text, Multiplicity: multiplicity.Single}

// checker runs the kind-specific checks of one definition. Problems are
// collected on the validator; the visitor methods never return an error.
type checker struct {
	v   *validator
	def *pipe.Definition
}

func (c *checker) failf(format string, args ...any) {
	c.v.failf(c.def.Code, format, args...)
}

func (c *checker) child(code string) (*pipe.Definition, bool) {
	d, err := c.v.lib.Get(code)
	return d, err == nil
}

func (c *checker) VisitSequence(s *pipe.SequenceSpec) error {
	if len(s.Steps) == 0 {
		c.failf("declares no steps")
		return nil
	}
	bound := inputScope(c.def)
	var (
		last    pipe.Binding
		hasLast bool
	)
	for i, step := range s.Steps {
		hasLast = false
		if step.Result == "" {
			c.failf("step %d: result name is empty", i)
		}
		child, ok := c.child(step.Pipe)
		if !ok {
			continue
		}

		local := bound
		out, hasOut := outputOf(child)
		switch {
		case step.BatchOver != "" && step.BatchAs != "":
			list, ok := bound[step.BatchOver]
			switch {
			case !ok:
				c.v.add(&MissingInputVariableError{Pipe: c.def.Code, Consumer: child.Code, Step: &i, Variable: step.BatchOver})
			case !list.Multiplicity.IsList():
				c.failf("step %d: batch_over '%s' is not a list", i, step.BatchOver)
			}
			if _, clash := bound[step.BatchAs]; clash {
				c.failf("step %d: batch_as '%s' shadows a bound variable", i, step.BatchAs)
			}
			local = bound.with(step.BatchAs, pipe.Binding{Concept: list.Concept, Multiplicity: multiplicity.Single})
			if hasOut && out.Multiplicity.IsList() {
				c.failf("step %d: batched pipe '%s' must output a single value, not %s", i, child.Code, out)
			}
			out = pipe.Binding{Concept: child.Output.Concept, Multiplicity: multiplicity.List()}
		case step.BatchOver != "" || step.BatchAs != "":
			c.failf("step %d: batch_over and batch_as must be set together", i)
		}
		c.v.consume(c.def, child, local, &i)

		for name, b := range c.v.exports(child) {
			if _, clash := bound[name]; clash {
				c.failf("step %d: pipe '%s' binds '%s', which is already bound", i, child.Code, name)
			}
			bound = bound.with(name, b)
		}
		if !hasOut {
			continue
		}
		if _, clash := bound[step.Result]; clash {
			c.failf("step %d: result '%s' is already bound", i, step.Result)
		}
		bound = bound.with(step.Result, out)
		last, hasLast = out, true
	}

	if !hasLast {
		c.failf("last step produces no output of its own")
		return nil
	}
	if last != c.def.Output {
		c.failf("output %s does not match the last step output %s", c.def.Output, last)
	}
	return nil
}

func (c *checker) VisitParallel(s *pipe.ParallelSpec) error {
	if len(s.Branches) == 0 {
		c.failf("declares no branches")
		return nil
	}
	if !s.AddEachOutput && s.CombinedOutput == "" {
		c.failf("sets neither add_each_output nor combined_output, so its branch results would be lost")
	}

	inputs := inputScope(c.def)
	results := make(scope, len(s.Branches))
	for _, b := range s.Branches {
		if b.Result == "" {
			c.failf("branch '%s': result name is empty", b.Pipe)
			continue
		}
		if _, dup := results[b.Result]; dup {
			c.failf("branch result '%s' is used twice", b.Result)
		}
		if _, clash := inputs[b.Result]; clash {
			c.failf("branch result '%s' shadows an input", b.Result)
		}
		child, ok := c.child(b.Pipe)
		if !ok {
			continue
		}
		c.v.consume(c.def, child, inputs, nil)
		out, ok := outputOf(child)
		if !ok {
			c.failf("branch '%s': pipe '%s' produces no output of its own", b.Result, child.Code)
			continue
		}
		results[b.Result] = out
	}

	if s.CombinedOutput == "" {
		return nil
	}
	want := pipe.Binding{Concept: s.CombinedOutput, Multiplicity: multiplicity.Single}
	if c.def.Output != want {
		c.failf("output %s must be the combined output %s", c.def.Output, want)
	}
	if _, err := c.v.concepts.Resolve(s.CombinedOutput); err != nil {
		c.failf("combined_output: %v", err)
		return nil
	}
	fields := c.v.concepts.StructureOf(s.CombinedOutput)
	if fields == nil {
		c.failf("combined_output '%s' is not a structured concept", s.CombinedOutput)
		return nil
	}
	declared := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		declared[f.Name] = struct{}{}
		if _, ok := results[f.Name]; !ok && f.Required && f.Default == nil {
			c.failf("combined_output field '%s' has no branch with that result name", f.Name)
		}
	}
	for _, b := range s.Branches {
		if _, ok := declared[b.Result]; !ok && b.Result != "" {
			c.failf("branch result '%s' is not a field of combined_output '%s'", b.Result, s.CombinedOutput)
		}
	}
	return nil
}

func (c *checker) VisitCondition(s *pipe.ConditionSpec) error {
	inputs := inputScope(c.def)

	switch {
	case (s.Expression == "") == (s.ExpressionTemplate == ""):
		c.failf("must set exactly one of expression and expression_template")
	default:
		src, compile := s.Expression, expr.Compile
		if src == "" {
			src, compile = s.ExpressionTemplate, expr.CompileTemplate
		}
		e, err := compile(src)
		if err != nil {
			c.failf("condition: %v", err)
			break
		}
		for _, root := range e.Roots() {
			if _, ok := inputs[root]; !ok {
				c.v.add(&MissingInputVariableError{Pipe: c.def.Code, Consumer: c.def.Code, Variable: root})
			}
		}
	}

	if s.DefaultOutcome == "" {
		c.failf("default_outcome is required; use '%s' to reject unknown outcomes", pipe.FailOutcome)
	}
	if len(s.Outcomes) == 0 {
		c.failf("declares no outcomes")
	}

	branchScope := inputs
	if s.AliasOutcomeTo != "" {
		if _, clash := inputs[s.AliasOutcomeTo]; clash {
			c.failf("add_alias_from_expression_to '%s' shadows an input", s.AliasOutcomeTo)
		}
		branchScope = inputs.with(s.AliasOutcomeTo, singleText)
	}

	var (
		firstCode    string
		firstExports scope
	)
	for _, code := range pipe.Children(c.def) {
		child, ok := c.child(code)
		if !ok {
			continue
		}
		c.v.consume(c.def, child, branchScope, nil)

		exported := c.v.exports(child)
		if _, clash := exported[s.AliasOutcomeTo]; s.AliasOutcomeTo != "" && clash {
			c.failf("outcome pipe '%s' binds '%s', which is the outcome alias", code, s.AliasOutcomeTo)
		}
		if firstExports == nil {
			firstCode, firstExports = code, exported
		} else if !sameScope(firstExports, exported) {
			c.failf("outcome pipes '%s' and '%s' bind different variables", firstCode, code)
		}

		out, ok := outputOf(child)
		if !ok {
			c.failf("outcome pipe '%s' produces no output of its own", code)
			continue
		}
		if !c.v.concepts.IsCompatible(c.def.Output.Concept, out.Concept) || !c.def.Output.Multiplicity.Accepts(out.Multiplicity) {
			c.failf("outcome pipe '%s' outputs %s, which does not satisfy %s", code, out, c.def.Output)
		}
	}
	return nil
}

func (c *checker) VisitBatch(s *pipe.BatchSpec) error {
	inputs := inputScope(c.def)
	list, ok := inputs[s.InputListName]
	switch {
	case s.InputListName == "":
		c.failf("input_list_name is required")
	case !ok:
		c.v.add(&MissingInputVariableError{Pipe: c.def.Code, Consumer: c.def.Code, Variable: s.InputListName})
	case !list.Multiplicity.IsList():
		c.failf("input_list_name '%s' is not a list input", s.InputListName)
	}
	if s.InputItemName == "" {
		c.failf("input_item_name is required")
	} else if _, clash := inputs[s.InputItemName]; clash {
		c.failf("input_item_name '%s' shadows an input", s.InputItemName)
	}
	switch {
	case !c.def.Output.Multiplicity.IsList():
		c.failf("output %s must be a list", c.def.Output)
	case ok && list.Multiplicity.IsList() && !c.def.Output.Multiplicity.Accepts(list.Multiplicity):
		c.failf("output %s cannot hold one item per element of '%s' (%s)", c.def.Output, s.InputListName, list)
	}

	child, ok := c.child(s.Branch)
	if !ok {
		if s.Branch == "" {
			c.failf("branch is required")
		}
		return nil
	}
	out, ok := outputOf(child)
	switch {
	case !ok:
		c.failf("branch '%s' produces no output of its own", child.Code)
	case out.Multiplicity.IsList():
		c.failf("branch '%s' must output a single value, not %s", child.Code, out)
	case !c.v.concepts.IsCompatible(c.def.Output.Concept, out.Concept):
		c.failf("branch '%s' outputs %s, which is not compatible with %s", child.Code, out.Concept, c.def.Output.Concept)
	}
	c.v.consume(c.def, child, inputs.with(s.InputItemName, pipe.Binding{Concept: list.Concept, Multiplicity: multiplicity.Single}), nil)
	return nil
}

func sameScope(a, b scope) bool {
	if len(a) != len(b) {
		return false
	}
	for name, binding := range a {
		if other, ok := b[name]; !ok || other != binding {
			return false
		}
	}
	return true
}

// references parses a template and reports roots that are not declared
// inputs.
func (c *checker) references(field, src string) []template.Reference {
	refs, err := template.References(src)
	if err != nil {
		c.failf("%s: %v", field, err)
		return nil
	}
	for _, ref := range refs {
		if _, ok := c.def.Input(ref.Root()); !ok && ref.Marker != template.OptionalBlock {
			c.v.add(&MissingInputVariableError{Pipe: c.def.Code, Consumer: c.def.Code, Variable: ref.Root()})
		}
	}
	return refs
}

func (c *checker) VisitLLM(s *pipe.LLMSpec) error {
	if strings.TrimSpace(s.Prompt) == "" {
		c.failf("prompt is required")
		return nil
	}
	refs := c.references("prompt", s.Prompt)
	if s.SystemPrompt != "" {
		refs = append(refs, c.references("system_prompt", s.SystemPrompt)...)
	}
	if err := template.CheckVisualTags(c.def.Code, operator.VisualInputs(c.v.concepts, c.def), refs); err != nil {
		c.v.add(err)
	}
	return nil
}

func (c *checker) VisitExtract(*pipe.ExtractSpec) error {
	if len(c.def.Inputs) != 1 {
		c.failf("extract takes exactly one image or document input, got %d", len(c.def.Inputs))
	} else if in := c.def.Inputs[0]; !c.v.concepts.IsVisual(in.Concept) || in.Multiplicity.IsList() {
		c.v.add(&IncompatibleInputError{
			Pipe:     c.def.Code,
			Variable: in.Name,
			Expected: "a single " + concept.Image + " or " + concept.PDF,
			Actual:   in.Binding.String(),
		})
	}
	if !c.v.concepts.IsCompatible(concept.Page, c.def.Output.Concept) {
		c.failf("output %s must be %s or refine it", c.def.Output, concept.Page)
	}
	return nil
}

func (c *checker) VisitImgGen(s *pipe.ImgGenSpec) error {
	if s.Prompt == "" {
		if len(c.def.Inputs) != 1 {
			c.failf("img_gen without a prompt takes exactly one text input, got %d", len(c.def.Inputs))
		} else if in := c.def.Inputs[0]; !c.v.concepts.IsCompatible(concept.Text, in.Concept) || in.Multiplicity.IsList() {
			c.v.add(&IncompatibleInputError{
				Pipe:     c.def.Code,
				Variable: in.Name,
				Expected: singleText.String(),
				Actual:   in.Binding.String(),
			})
		}
	}
	if !c.v.concepts.IsCompatible(concept.Image, c.def.Output.Concept) {
		c.failf("output %s must be %s or refine it", c.def.Output, concept.Image)
	}
	return nil
}

func (c *checker) VisitCompose(s *pipe.ComposeSpec) error {
	if s.Template == "" {
		c.failf("template is required")
	} else {
		c.references("template", s.Template)
	}
	if s.TagStyle != "" {
		if _, err := template.ParseTagStyle(s.TagStyle); err != nil {
			c.failf("tag_style: %v", err)
		}
	}
	if !c.v.concepts.IsCompatible(concept.Text, c.def.Output.Concept) || c.def.Output.Multiplicity.IsList() {
		c.failf("output %s must be a single %s or refine it", c.def.Output, concept.Text)
	}
	return nil
}

func (c *checker) VisitFunc(s *pipe.FuncSpec) error {
	switch {
	case (s.FunctionName == "") == (s.Script == ""):
		c.failf("must set exactly one of function_name and script")
	case s.Script != "":
		if err := script.Check(c.def.Code, s.Script); err != nil {
			c.failf("script: %v", err)
		}
	}
	return nil
}
