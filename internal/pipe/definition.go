package pipe

import (
	"github.com/vk/pipegrid/internal/multiplicity"
)

// Kind names a pipe kind as written in definitions.
type Kind string

const (
	KindSequence  Kind = "sequence"
	KindParallel  Kind = "parallel"
	KindCondition Kind = "condition"
	KindBatch     Kind = "batch"
	KindLLM       Kind = "llm"
	KindExtract   Kind = "extract"
	KindImgGen    Kind = "img_gen"
	KindCompose   Kind = "compose"
	KindFunc      Kind = "func"
)

// Kinds lists every kind, controllers first.
var Kinds = []Kind{KindSequence, KindParallel, KindCondition, KindBatch, KindLLM, KindExtract, KindImgGen, KindCompose, KindFunc}

// IsController reports whether pipes of this kind invoke other pipes.
func (k Kind) IsController() bool {
	switch k {
	case KindSequence, KindParallel, KindCondition, KindBatch:
		return true
	default:
		return false
	}
}

// Binding pairs a concept code with a multiplicity.
type Binding struct {
	Concept      string
	Multiplicity multiplicity.Multiplicity
}

func (b Binding) String() string {
	return b.Multiplicity.Format(b.Concept)
}

// Input is one named, declared input.
type Input struct {
	Name string
	Binding
}

// Definition is an immutable pipe declaration.
type Definition struct {
	Code        string
	Domain      string
	Description string
	Inputs      []Input
	Output      Binding
	Spec        Spec
}

// Kind returns the kind of the definition's spec.
func (d *Definition) Kind() Kind {
	return d.Spec.Kind()
}

// Input returns the declared input with the given name.
func (d *Definition) Input(name string) (Input, bool) {
	for _, in := range d.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return Input{}, false
}

// InputNames returns the declared input names in declaration order.
func (d *Definition) InputNames() []string {
	names := make([]string, len(d.Inputs))
	for i, in := range d.Inputs {
		names[i] = in.Name
	}
	return names
}
