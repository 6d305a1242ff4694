package memory

import (
	"fmt"

	"github.com/vk/pipegrid/internal/multiplicity"
	"github.com/zclconf/go-cty/cty"
)

// Stuff is a named, typed runtime value. A single value holds exactly one
// item; a list holds as many items as its multiplicity allows.
type Stuff struct {
	Name         string
	Concept      string
	Multiplicity multiplicity.Multiplicity
	Items        []cty.Value
	// ProducedBy is the code of the pipe that produced the value, or empty
	// for caller-supplied inputs.
	ProducedBy string
}

// NewStuff builds a Stuff, checking the item count against m.
func NewStuff(name, concept string, m multiplicity.Multiplicity, items ...cty.Value) (*Stuff, error) {
	if err := m.Check(len(items)); err != nil {
		return nil, fmt.Errorf("stuff %q of concept %q: %w", name, concept, err)
	}
	return &Stuff{Name: name, Concept: concept, Multiplicity: m, Items: items}, nil
}

// IsList reports whether the stuff holds a list.
func (s *Stuff) IsList() bool {
	return s.Multiplicity.IsList()
}

// Len returns the number of items.
func (s *Stuff) Len() int {
	return len(s.Items)
}

// Single returns the only item of a single-valued stuff.
func (s *Stuff) Single() cty.Value {
	if s.IsList() || len(s.Items) != 1 {
		return cty.NilVal
	}
	return s.Items[0]
}

// Value returns the content as one cty value: the item itself for a single
// stuff, a tuple of items for a list.
func (s *Stuff) Value() cty.Value {
	if !s.IsList() {
		return s.Single()
	}
	if len(s.Items) == 0 {
		return cty.EmptyTupleVal
	}
	return cty.TupleVal(s.Items)
}

// Rename returns a shallow copy bound to another name.
func (s *Stuff) Rename(name string) *Stuff {
	cp := *s
	cp.Name = name
	return &cp
}

// Item returns the i-th element of a list as a single stuff named name.
func (s *Stuff) Item(name string, i int) *Stuff {
	return &Stuff{
		Name:         name,
		Concept:      s.Concept,
		Multiplicity: multiplicity.Single,
		Items:        []cty.Value{s.Items[i]},
		ProducedBy:   s.ProducedBy,
	}
}

func (s *Stuff) String() string {
	return fmt.Sprintf("%s: %s (%d item(s))", s.Name, s.Multiplicity.Format(s.Concept), len(s.Items))
}
