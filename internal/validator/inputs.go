package validator

import (
	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/memory"
	"github.com/vk/pipegrid/internal/pipe"
)

// ValidateInputs checks the caller-supplied inputs of a run against the
// declared inputs of the root pipe: every declared input present with a
// compatible concept and the right item count, nothing undeclared.
func ValidateInputs(concepts *concept.Registry, root *pipe.Definition, inputs []*memory.Stuff) error {
	v := &validator{concepts: concepts}
	given := make(map[string]*memory.Stuff, len(inputs))
	for _, s := range inputs {
		if _, dup := given[s.Name]; dup {
			v.failf(root.Code, "input '%s' is supplied twice", s.Name)
		}
		given[s.Name] = s
		if _, ok := root.Input(s.Name); !ok {
			v.failf(root.Code, "input '%s' is not declared", s.Name)
		}
	}

	for _, in := range root.Inputs {
		s, ok := given[in.Name]
		if !ok {
			v.add(&MissingInputVariableError{Pipe: root.Code, Variable: in.Name})
			continue
		}
		actual := s.Multiplicity.Format(s.Concept)
		if !concepts.IsCompatible(in.Concept, s.Concept) || !in.Multiplicity.Accepts(s.Multiplicity) {
			v.add(&IncompatibleInputError{Pipe: root.Code, Variable: in.Name, Expected: in.Binding.String(), Actual: actual})
			continue
		}
		if err := in.Multiplicity.Check(s.Len()); err != nil {
			v.add(&IncompatibleInputError{Pipe: root.Code, Variable: in.Name, Expected: in.Binding.String(), Actual: err.Error()})
		}
	}
	return v.result()
}
