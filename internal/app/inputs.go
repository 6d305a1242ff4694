package app

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/memory"
	"github.com/vk/pipegrid/internal/multiplicity"
	"github.com/vk/pipegrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// inputEntry is one variable of an inputs file.
type inputEntry struct {
	Concept string `yaml:"concept"`
	Content any    `yaml:"content"`
}

// LoadInputs reads a YAML inputs file mapping variable names to a concept
// reference and its content:
//
//	invoice:
//	  concept: Invoice
//	  content: {number: "F-1", amount: 12.5}
//	pages:
//	  concept: Text[]
//	  content: ["first", "second"]
//
// Bare concept names resolve like they do in a library file of domain.
// Inputs are returned sorted by name.
func LoadInputs(path string, concepts *concept.Registry, domain string) ([]*memory.Stuff, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inputs file: %w", err)
	}
	var doc map[string]inputEntry
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse inputs file %s: %w", path, err)
	}

	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)

	inputs := make([]*memory.Stuff, 0, len(names))
	for _, name := range names {
		entry := doc[name]
		s, err := newInput(concepts, domain, name, entry.Concept, entry.Content)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, s)
	}
	return inputs, nil
}

type inputFlag struct {
	name  string
	ref   string
	value string
}

// parseInputFlag splits a name=Concept:value flag. A list reference takes a
// comma-separated value.
func parseInputFlag(raw string) (inputFlag, error) {
	name, rest, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return inputFlag{}, fmt.Errorf("invalid input %q: expected name=Concept:value", raw)
	}
	ref, value, ok := strings.Cut(rest, ":")
	if !ok || strings.TrimSpace(ref) == "" {
		return inputFlag{}, fmt.Errorf("invalid input %q: expected name=Concept:value", raw)
	}
	return inputFlag{name: strings.TrimSpace(name), ref: strings.TrimSpace(ref), value: value}, nil
}

// parseInputFlags turns name=Concept:value flags into inputs.
func parseInputFlags(raw []string, concepts *concept.Registry, domain string) ([]*memory.Stuff, error) {
	inputs := make([]*memory.Stuff, 0, len(raw))
	for _, r := range raw {
		f, err := parseInputFlag(r)
		if err != nil {
			return nil, err
		}
		var content any = f.value
		if _, m, err := multiplicity.Parse(f.ref); err == nil && m.IsList() {
			var items []any
			for _, part := range strings.Split(f.value, ",") {
				if part = strings.TrimSpace(part); part != "" {
					items = append(items, part)
				}
			}
			content = items
		}
		s, err := newInput(concepts, domain, f.name, f.ref, content)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, s)
	}
	return inputs, nil
}

func newInput(concepts *concept.Registry, domain, name, ref string, content any) (*memory.Stuff, error) {
	if ref == "" {
		return nil, fmt.Errorf("input '%s': concept is required", name)
	}
	base, m, err := multiplicity.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("input '%s': %w", name, err)
	}
	code, err := concepts.ResolveRef(base, domain)
	if err != nil {
		return nil, fmt.Errorf("input '%s': %w", name, err)
	}

	var items []cty.Value
	switch {
	case content == nil && m.IsList():
	case content == nil:
		return nil, fmt.Errorf("input '%s' has no content", name)
	default:
		v, err := registry.ToStuffValue(content)
		if err != nil {
			return nil, fmt.Errorf("input '%s': %w", name, err)
		}
		items, err = registry.Items(v, m.IsList())
		if err != nil {
			return nil, fmt.Errorf("input '%s': %w", name, err)
		}
	}
	return memory.NewStuff(name, code, m, items...)
}
