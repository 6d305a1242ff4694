package concept

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/zclconf/go-cty/cty"
)

// Registry holds every known concept. It is written during startup and is
// safe for concurrent reads once frozen.
type Registry struct {
	concepts map[string]*Concept
	frozen   bool
}

// NewRegistry returns a registry pre-populated with the native concepts.
func NewRegistry() *Registry {
	r := &Registry{concepts: make(map[string]*Concept)}
	for _, c := range natives() {
		r.concepts[c.Code] = c
	}
	return r
}

// Register adds a concept. Codes are write-once.
func (r *Registry) Register(c *Concept) error {
	if r.frozen {
		return fmt.Errorf("cannot register concept %q: registry is frozen", c.Code)
	}
	domain, name := SplitCode(c.Code)
	if !domainPattern.MatchString(domain) || !namePattern.MatchString(name) {
		return fmt.Errorf("invalid concept code %q: expected domain.PascalCaseName", c.Code)
	}
	if domain == NativeDomain {
		return fmt.Errorf("invalid concept code %q: the %q domain is reserved", c.Code, NativeDomain)
	}
	if _, exists := r.concepts[c.Code]; exists {
		return &DuplicateConceptError{Code: c.Code}
	}
	seen := make(map[string]struct{}, len(c.Structure))
	for _, f := range c.Structure {
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("concept %q declares field %q twice", c.Code, f.Name)
		}
		seen[f.Name] = struct{}{}
		if len(f.Choices) > 0 && f.Type.Kind != KindText {
			return fmt.Errorf("concept %q, field %q: choices are only allowed on text fields", c.Code, f.Name)
		}
	}
	r.concepts[c.Code] = c
	return nil
}

// Resolve returns the concept registered under code.
func (r *Registry) Resolve(code string) (*Concept, error) {
	c, ok := r.concepts[code]
	if !ok {
		return nil, &UnknownConceptError{Code: code}
	}
	return c, nil
}

// ResolveRef turns a reference written in a definition into a full code.
// Qualified references are taken as-is; bare names match a native concept
// first, then a concept of the given domain.
func (r *Registry) ResolveRef(ref, domain string) (string, error) {
	if strings.Contains(ref, ".") {
		if _, err := r.Resolve(ref); err != nil {
			return "", err
		}
		return ref, nil
	}
	if native := JoinCode(NativeDomain, ref); r.has(native) {
		return native, nil
	}
	if domain != "" {
		if local := JoinCode(domain, ref); r.has(local) {
			return local, nil
		}
	}
	return "", &UnknownConceptError{Code: ref, Domain: domain}
}

func (r *Registry) has(code string) bool {
	_, ok := r.concepts[code]
	return ok
}

// Codes returns every registered code, sorted.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.concepts))
	for code := range r.concepts {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Freeze resolves parent references, applies the implicit Text parent to
// concepts that declare neither a parent nor a structure, and verifies the
// refinement lattice is acyclic. The registry rejects registrations
// afterwards.
func (r *Registry) Freeze() error {
	if r.frozen {
		return nil
	}
	var errs []string

	codes := r.Codes()
	for _, code := range codes {
		c := r.concepts[code]
		if c.native {
			continue
		}
		if c.Refines == "" {
			if !c.IsStructured() {
				c.Refines = Text
			}
			continue
		}
		parent, err := r.ResolveRef(c.Refines, c.Domain())
		if err != nil {
			errs = append(errs, fmt.Sprintf("concept '%s': refines unknown concept '%s'", code, c.Refines))
			continue
		}
		c.Refines = parent
	}

	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, code := range codes {
		_ = g.AddVertex(code)
	}
	for _, code := range codes {
		c := r.concepts[code]
		if c.Refines == "" || !r.has(c.Refines) {
			continue
		}
		if err := g.AddEdge(code, c.Refines); err != nil {
			if errors.Is(err, graph.ErrEdgeCreatesCycle) {
				errs = append(errs, (&RefinementCycleError{Code: code, Parent: c.Refines}).Error())
				continue
			}
			errs = append(errs, fmt.Sprintf("concept '%s': %v", code, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("concept validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	r.frozen = true
	return nil
}

// IsCompatible reports whether a value of the actual concept satisfies a
// binding declared with the binding concept. It is true iff actual equals
// binding or refines it transitively.
func (r *Registry) IsCompatible(binding, actual string) bool {
	seen := make(map[string]struct{})
	for code := actual; code != ""; {
		if code == binding {
			return true
		}
		if _, loop := seen[code]; loop {
			return false
		}
		seen[code] = struct{}{}
		c, ok := r.concepts[code]
		if !ok {
			return false
		}
		code = c.Refines
	}
	return false
}

// IsVisual reports whether values of the concept are images or documents.
func (r *Registry) IsVisual(code string) bool {
	return r.IsCompatible(Image, code) || r.IsCompatible(PDF, code)
}

// Ancestry returns the refinement chain of code, starting with code itself.
func (r *Registry) Ancestry(code string) []string {
	var chain []string
	seen := make(map[string]struct{})
	for c, ok := r.concepts[code]; ok; c, ok = r.concepts[c.Refines] {
		if _, loop := seen[c.Code]; loop {
			break
		}
		seen[c.Code] = struct{}{}
		chain = append(chain, c.Code)
	}
	return chain
}

// ContentType returns the runtime type of a single value of the concept. A
// structured concept is an object of its fields; an unstructured one
// inherits the type of its nearest structured or native ancestor.
func (r *Registry) ContentType(code string) (cty.Type, error) {
	for _, ancestor := range r.Ancestry(code) {
		c := r.concepts[ancestor]
		if c.IsStructured() {
			attrs := make(map[string]cty.Type, len(c.Structure))
			for _, f := range c.Structure {
				attrs[f.Name] = f.Type.CtyType()
			}
			return cty.Object(attrs), nil
		}
		if c.native {
			return nativeType(c.Code), nil
		}
	}
	if _, err := r.Resolve(code); err != nil {
		return cty.NilType, err
	}
	return cty.String, nil
}

// StructureOf returns the fields that define the content of code, taken from
// its nearest structured ancestor.
func (r *Registry) StructureOf(code string) []*Field {
	for _, ancestor := range r.Ancestry(code) {
		if c := r.concepts[ancestor]; c.IsStructured() {
			return c.Structure
		}
	}
	return nil
}
