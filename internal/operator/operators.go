package operator

import (
	"context"
	"fmt"

	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/memory"
	"github.com/vk/pipegrid/internal/multiplicity"
	"github.com/vk/pipegrid/internal/pipe"
	"github.com/vk/pipegrid/internal/registry"
	"github.com/vk/pipegrid/internal/script"
	"github.com/vk/pipegrid/internal/template"
	"github.com/zclconf/go-cty/cty"
)

func newResult(def *pipe.Definition, items []cty.Value) *memory.Stuff {
	return &memory.Stuff{
		Concept:      def.Output.Concept,
		Multiplicity: def.Output.Multiplicity,
		Items:        items,
		ProducedBy:   def.Code,
	}
}

func specMismatch(def *pipe.Definition, want pipe.Kind) error {
	return fmt.Errorf("pipe '%s': expected a %s definition, got %s", def.Code, want, def.Kind())
}

func noBackend(def *pipe.Definition) error {
	return fmt.Errorf("pipe '%s': no %s backend configured", def.Code, def.Kind())
}

func outputShape(concepts *concept.Registry, def *pipe.Definition) (OutputShape, error) {
	ty, err := concepts.ContentType(def.Output.Concept)
	if err != nil {
		return OutputShape{}, err
	}
	return OutputShape{Binding: def.Output, Type: ty, Structure: concepts.StructureOf(def.Output.Concept)}, nil
}

// VisualInputs returns the names of the declared inputs holding images or
// documents.
func VisualInputs(concepts *concept.Registry, def *pipe.Definition) []string {
	var names []string
	for _, in := range def.Inputs {
		if concepts.IsVisual(in.Concept) {
			names = append(names, in.Name)
		}
	}
	return names
}

// LLM renders the prompts of an llm pipe and asks the client for content.
type LLM struct {
	Client   LLMClient
	Resolver *template.Resolver
}

func (o *LLM) Invoke(ctx context.Context, def *pipe.Definition, scope Scope) (*memory.Stuff, error) {
	spec, ok := def.Spec.(*pipe.LLMSpec)
	if !ok {
		return nil, specMismatch(def, pipe.KindLLM)
	}
	if o.Client == nil {
		return nil, noBackend(def)
	}

	prompt, err := template.Parse(spec.Prompt)
	if err != nil {
		return nil, fmt.Errorf("pipe '%s': prompt: %w", def.Code, err)
	}
	system, err := template.Parse(spec.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("pipe '%s': system prompt: %w", def.Code, err)
	}
	refs := append(prompt.References(), system.References()...)
	if err := template.CheckVisualTags(def.Code, VisualInputs(o.Resolver.Concepts, def), refs); err != nil {
		return nil, err
	}

	renderedPrompt, err := o.Resolver.Render(prompt, scope)
	if err != nil {
		return nil, fmt.Errorf("pipe '%s': prompt: %w", def.Code, err)
	}
	renderedSystem, err := o.Resolver.Render(system, scope)
	if err != nil {
		return nil, fmt.Errorf("pipe '%s': system prompt: %w", def.Code, err)
	}
	shape, err := outputShape(o.Resolver.Concepts, def)
	if err != nil {
		return nil, err
	}

	items, err := o.Client.Generate(ctx, &LLMRequest{
		Pipe:         def.Code,
		Model:        spec.Model,
		SystemPrompt: renderedSystem.Text,
		Prompt:       renderedPrompt.Text,
		Visuals:      append(renderedSystem.Visuals, renderedPrompt.Visuals...),
		Settings:     spec.Settings,
		Output:       shape,
	})
	if err != nil {
		return nil, &BackendError{Pipe: def.Code, Kind: pipe.KindLLM, Err: err}
	}
	return newResult(def, items), nil
}

// Extract sends the single image or document input of an extract pipe to
// the backend.
type Extract struct {
	Backend  Extractor
	Concepts *concept.Registry
}

func (o *Extract) Invoke(ctx context.Context, def *pipe.Definition, scope Scope) (*memory.Stuff, error) {
	spec, ok := def.Spec.(*pipe.ExtractSpec)
	if !ok {
		return nil, specMismatch(def, pipe.KindExtract)
	}
	if o.Backend == nil {
		return nil, noBackend(def)
	}
	if len(def.Inputs) != 1 {
		return nil, fmt.Errorf("pipe '%s': extract takes exactly one input, got %d", def.Code, len(def.Inputs))
	}
	doc, err := scope.Lookup(def.Inputs[0].Name)
	if err != nil {
		return nil, err
	}
	if doc.IsList() {
		return nil, fmt.Errorf("pipe '%s': extract takes a single %s, got a list", def.Code, doc.Concept)
	}

	items, err := o.Backend.Extract(ctx, &ExtractRequest{
		Pipe:     def.Code,
		Model:    spec.Model,
		Concept:  doc.Concept,
		IsPDF:    o.Concepts.IsCompatible(concept.PDF, doc.Concept),
		Document: doc.Single(),
		Settings: spec.Settings,
	})
	if err != nil {
		return nil, &BackendError{Pipe: def.Code, Kind: pipe.KindExtract, Err: err}
	}
	return newResult(def, items), nil
}

// ImgGen asks the backend for images described by a literal prompt or by
// the pipe's single text input.
type ImgGen struct {
	Backend ImageGenerator
}

func (o *ImgGen) Invoke(ctx context.Context, def *pipe.Definition, scope Scope) (*memory.Stuff, error) {
	spec, ok := def.Spec.(*pipe.ImgGenSpec)
	if !ok {
		return nil, specMismatch(def, pipe.KindImgGen)
	}
	if o.Backend == nil {
		return nil, noBackend(def)
	}

	prompt := spec.Prompt
	if prompt == "" {
		if len(def.Inputs) != 1 {
			return nil, fmt.Errorf("pipe '%s': img_gen without a prompt takes exactly one text input", def.Code)
		}
		in, err := scope.Lookup(def.Inputs[0].Name)
		if err != nil {
			return nil, err
		}
		v := in.Single()
		if v == cty.NilVal || v.IsNull() || v.Type() != cty.String {
			return nil, fmt.Errorf("pipe '%s': input '%s' is not a single text", def.Code, in.Name)
		}
		prompt = v.AsString()
	}

	count := 1
	if def.Output.Multiplicity.Kind == multiplicity.Fixed {
		count = def.Output.Multiplicity.N
	}
	items, err := o.Backend.GenerateImages(ctx, &ImageRequest{
		Pipe:        def.Code,
		Model:       spec.Model,
		Prompt:      prompt,
		AspectRatio: spec.AspectRatio,
		Seed:        spec.Seed,
		Count:       count,
		Settings:    spec.Settings,
	})
	if err != nil {
		return nil, &BackendError{Pipe: def.Code, Kind: pipe.KindImgGen, Err: err}
	}
	return newResult(def, items), nil
}

// Compose renders the template of a compose pipe into text.
type Compose struct {
	Resolver *template.Resolver
}

func (o *Compose) Invoke(_ context.Context, def *pipe.Definition, scope Scope) (*memory.Stuff, error) {
	spec, ok := def.Spec.(*pipe.ComposeSpec)
	if !ok {
		return nil, specMismatch(def, pipe.KindCompose)
	}
	resolver := o.Resolver
	if spec.TagStyle != "" {
		style, err := template.ParseTagStyle(spec.TagStyle)
		if err != nil {
			return nil, fmt.Errorf("pipe '%s': %w", def.Code, err)
		}
		resolver = template.NewResolver(o.Resolver.Concepts, style)
	}
	rendered, err := resolver.RenderString(spec.Template, scope)
	if err != nil {
		return nil, fmt.Errorf("pipe '%s': %w", def.Code, err)
	}
	return newResult(def, []cty.Value{cty.StringVal(rendered.Text)}), nil
}

// Func calls a registered Go function or runs the pipe's script.
type Func struct {
	Funcs *registry.Registry
}

func (o *Func) Invoke(ctx context.Context, def *pipe.Definition, scope Scope) (*memory.Stuff, error) {
	spec, ok := def.Spec.(*pipe.FuncSpec)
	if !ok {
		return nil, specMismatch(def, pipe.KindFunc)
	}

	inputs := make(registry.Inputs, len(def.Inputs))
	for _, in := range def.Inputs {
		s, err := scope.Lookup(in.Name)
		if err != nil {
			return nil, err
		}
		inputs[in.Name] = s
	}

	var result any
	if spec.FunctionName != "" {
		if o.Funcs == nil {
			return nil, fmt.Errorf("pipe '%s': function '%s' is not registered", def.Code, spec.FunctionName)
		}
		fn, ok := o.Funcs.Lookup(spec.FunctionName)
		if !ok {
			return nil, fmt.Errorf("pipe '%s': function '%s' is not registered", def.Code, spec.FunctionName)
		}
		out, err := fn(ctx, inputs)
		if err != nil {
			return nil, &BackendError{Pipe: def.Code, Kind: pipe.KindFunc, Err: err}
		}
		result = out
	} else {
		vars := make(map[string]cty.Value, len(inputs))
		for name, s := range inputs {
			vars[name] = s.Value()
		}
		out, err := script.Run(ctx, def.Code+".star", spec.Script, vars)
		if err != nil {
			return nil, &BackendError{Pipe: def.Code, Kind: pipe.KindFunc, Err: err}
		}
		result = out
	}

	expected := def.Output.String()
	v, err := registry.ToStuffValue(result)
	if err != nil {
		return nil, &OutputContractViolationError{Pipe: def.Code, Expected: expected, Actual: fmt.Sprintf("%T", result), Err: err}
	}
	items, err := registry.Items(v, def.Output.Multiplicity.IsList())
	if err != nil {
		return nil, &OutputContractViolationError{Pipe: def.Code, Expected: expected, Actual: v.Type().FriendlyName(), Err: err}
	}
	return newResult(def, items), nil
}
