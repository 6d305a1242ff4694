package hcl

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/multiplicity"
	"github.com/vk/pipegrid/internal/pipe"
	"github.com/vk/pipegrid/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// translatePipe converts a pipe block into a definition. Concept references
// resolve against the file's domain.
func (l *Loader) translatePipe(ctx context.Context, concepts *concept.Registry, pf *parsedFile, p *schema.Pipe) (*pipe.Definition, error) {
	ctxlog.FromContext(ctx).Debug("Translating pipe.", "pipe", p.Code, "kind", p.Kind)

	def := &pipe.Definition{
		Code:        p.Code,
		Domain:      pf.domain,
		Description: p.Description,
	}

	inputs, err := translateInputs(concepts, pf.domain, p.Inputs)
	if err != nil {
		return nil, err
	}
	def.Inputs = inputs

	if p.Output != "" {
		out, err := translateBinding(concepts, pf.domain, p.Output)
		if err != nil {
			return nil, fmt.Errorf("output: %w", err)
		}
		def.Output = out
	}

	spec, err := l.translateSpec(concepts, pf, p)
	if err != nil {
		return nil, err
	}
	def.Spec = spec

	if ps, ok := spec.(*pipe.ParallelSpec); ok && p.Output == "" && ps.CombinedOutput != "" {
		def.Output = pipe.Binding{Concept: ps.CombinedOutput, Multiplicity: multiplicity.Single}
	}
	if p.Output == "" && pipe.Kind(p.Kind) != pipe.KindParallel {
		return nil, fmt.Errorf("output is required")
	}
	return def, nil
}

// translateBinding parses a reference such as "Page[]" or "invoices.Line[3]".
func translateBinding(concepts *concept.Registry, domain, ref string) (pipe.Binding, error) {
	name, m, err := multiplicity.Parse(ref)
	if err != nil {
		return pipe.Binding{}, err
	}
	code, err := concepts.ResolveRef(name, domain)
	if err != nil {
		return pipe.Binding{}, err
	}
	return pipe.Binding{Concept: code, Multiplicity: m}, nil
}

// translateInputs reads the inputs object in declaration order.
func translateInputs(concepts *concept.Registry, domain string, expr hcl.Expression) ([]pipe.Input, error) {
	if expr == nil {
		return nil, nil
	}
	if val, diags := expr.Value(nil); !diags.HasErrors() && val.IsNull() {
		return nil, nil
	}
	pairs, diags := hcl.ExprMap(expr)
	if diags.HasErrors() {
		return nil, fmt.Errorf("inputs: %w", diags)
	}

	inputs := make([]pipe.Input, 0, len(pairs))
	for _, pair := range pairs {
		key, diags := pair.Key.Value(nil)
		if diags.HasErrors() || key.Type() != cty.String {
			return nil, fmt.Errorf("inputs: keys must be variable names")
		}
		name := key.AsString()
		ref, diags := pair.Value.Value(nil)
		if diags.HasErrors() || ref.Type() != cty.String || ref.IsNull() {
			return nil, fmt.Errorf("input '%s': the concept reference must be a string", name)
		}
		b, err := translateBinding(concepts, domain, ref.AsString())
		if err != nil {
			return nil, fmt.Errorf("input '%s': %w", name, err)
		}
		inputs = append(inputs, pipe.Input{Name: name, Binding: b})
	}
	return inputs, nil
}

// translateSpec decodes the kind-specific body of a pipe block. Attributes
// that do not belong to the kind are rejected by the decoder.
func (l *Loader) translateSpec(concepts *concept.Registry, pf *parsedFile, p *schema.Pipe) (pipe.Spec, error) {
	decode := func(target any) error {
		if diags := gohcl.DecodeBody(p.Body, nil, target); diags.HasErrors() {
			return diags
		}
		return nil
	}

	switch pipe.Kind(p.Kind) {
	case pipe.KindSequence:
		var body schema.SequenceBody
		if err := decode(&body); err != nil {
			return nil, err
		}
		spec := &pipe.SequenceSpec{}
		for _, s := range body.Steps {
			spec.Steps = append(spec.Steps, pipe.Step{Pipe: s.Pipe, Result: s.Result, BatchOver: s.BatchOver, BatchAs: s.BatchAs})
		}
		return spec, nil

	case pipe.KindParallel:
		var body schema.ParallelBody
		if err := decode(&body); err != nil {
			return nil, err
		}
		spec := &pipe.ParallelSpec{AddEachOutput: body.AddEachOutput}
		for _, b := range body.Branches {
			spec.Branches = append(spec.Branches, pipe.Branch{Pipe: b.Pipe, Result: b.Result})
		}
		if body.CombinedOutput != "" {
			code, err := concepts.ResolveRef(body.CombinedOutput, pf.domain)
			if err != nil {
				return nil, fmt.Errorf("combined_output: %w", err)
			}
			spec.CombinedOutput = code
		}
		return spec, nil

	case pipe.KindCondition:
		var body schema.ConditionBody
		if err := decode(&body); err != nil {
			return nil, err
		}
		tmpl, err := templateSource(body.ExpressionTemplate, pf.file.Bytes)
		if err != nil {
			return nil, fmt.Errorf("expression_template: %w", err)
		}
		return &pipe.ConditionSpec{
			Expression:         body.Expression,
			ExpressionTemplate: tmpl,
			Outcomes:           body.Outcomes,
			DefaultOutcome:     body.DefaultOutcome,
			AliasOutcomeTo:     body.AliasOutcomeTo,
		}, nil

	case pipe.KindBatch:
		var body schema.BatchBody
		if err := decode(&body); err != nil {
			return nil, err
		}
		return &pipe.BatchSpec{Branch: body.Branch, InputListName: body.InputListName, InputItemName: body.InputItemName}, nil

	case pipe.KindLLM:
		var body schema.LLMBody
		if err := decode(&body); err != nil {
			return nil, err
		}
		return &pipe.LLMSpec{Model: body.Model, SystemPrompt: body.SystemPrompt, Prompt: body.Prompt, Settings: body.Settings}, nil

	case pipe.KindExtract:
		var body schema.ExtractBody
		if err := decode(&body); err != nil {
			return nil, err
		}
		return &pipe.ExtractSpec{Model: body.Model, Settings: body.Settings}, nil

	case pipe.KindImgGen:
		var body schema.ImgGenBody
		if err := decode(&body); err != nil {
			return nil, err
		}
		return &pipe.ImgGenSpec{
			Model:       body.Model,
			Prompt:      body.Prompt,
			AspectRatio: body.AspectRatio,
			Seed:        body.Seed,
			Settings:    body.Settings,
		}, nil

	case pipe.KindCompose:
		var body schema.ComposeBody
		if err := decode(&body); err != nil {
			return nil, err
		}
		return &pipe.ComposeSpec{Template: body.Template, TagStyle: body.TagStyle}, nil

	case pipe.KindFunc:
		var body schema.FuncBody
		if err := decode(&body); err != nil {
			return nil, err
		}
		return &pipe.FuncSpec{FunctionName: body.FunctionName, Script: body.Script}, nil

	default:
		kinds := make([]string, len(pipe.Kinds))
		for i, k := range pipe.Kinds {
			kinds[i] = string(k)
		}
		return nil, fmt.Errorf("unknown pipe kind %q, expected one of: %s", p.Kind, strings.Join(kinds, ", "))
	}
}

// templateSource returns the raw text of a template attribute. HCL would
// otherwise evaluate its interpolations itself.
func templateSource(expr hcl.Expression, src []byte) (string, error) {
	if expr == nil {
		return "", nil
	}
	if val, diags := expr.Value(nil); !diags.HasErrors() && val.IsNull() {
		return "", nil
	}
	raw := string(expr.Range().SliceBytes(src))
	switch {
	case len(raw) >= 2 && strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`):
		return raw[1 : len(raw)-1], nil
	case strings.HasPrefix(raw, "<<"):
		first := strings.IndexByte(raw, '\n')
		if first < 0 {
			return "", fmt.Errorf("malformed heredoc")
		}
		// drop the closing marker line
		body := strings.TrimRight(raw[first+1:], "\n")
		last := strings.LastIndexByte(body, '\n')
		if last < 0 {
			return "", nil
		}
		return body[:last], nil
	default:
		return raw, nil
	}
}
