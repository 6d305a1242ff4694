package memory

import (
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// Memory is one scope of working memory.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*Stuff
	order   []string
}

// New creates a root scope seeded with the caller-supplied inputs.
func New(initial ...*Stuff) (*Memory, error) {
	m := &Memory{entries: make(map[string]*Stuff, len(initial))}
	for _, s := range initial {
		if err := m.Bind(s.Name, s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Bind adds a binding to this scope. Bindings are write-once.
func (m *Memory) Bind(name string, s *Stuff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bindLocked(name, s)
}

func (m *Memory) bindLocked(name string, s *Stuff) error {
	if _, exists := m.entries[name]; exists {
		return &DuplicateBindingError{Name: name}
	}
	if s.Name != name {
		s = s.Rename(name)
	}
	m.entries[name] = s
	m.order = append(m.order, name)
	return nil
}

// MergeResult exposes the declared result of a completed child invocation
// in this scope. It is the single write path from a fork back into its
// parent.
func (m *Memory) MergeResult(name string, s *Stuff) error {
	return m.Bind(name, s)
}

// MergeResults binds every entry under its own name, in order, or none of
// them.
func (m *Memory) MergeResults(entries ...*Stuff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{}, len(entries))
	for _, s := range entries {
		if _, exists := m.entries[s.Name]; exists {
			return &DuplicateBindingError{Name: s.Name}
		}
		if _, dup := seen[s.Name]; dup {
			return &DuplicateBindingError{Name: s.Name}
		}
		seen[s.Name] = struct{}{}
	}
	for _, s := range entries {
		if err := m.bindLocked(s.Name, s); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the binding for name.
func (m *Memory) Lookup(name string) (*Stuff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.entries[name]
	if !ok {
		return nil, &UnboundVariableError{Name: name}
	}
	return s, nil
}

// Has reports whether name is bound.
func (m *Memory) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[name]
	return ok
}

// Fork returns a new scope holding a snapshot of this one plus extra.
// Writes to the fork never reach this scope.
func (m *Memory) Fork(extra ...*Stuff) (*Memory, error) {
	m.mu.Lock()
	fork := &Memory{
		entries: make(map[string]*Stuff, len(m.entries)+len(extra)),
		order:   make([]string, len(m.order), len(m.order)+len(extra)),
	}
	for name, s := range m.entries {
		fork.entries[name] = s
	}
	copy(fork.order, m.order)
	m.mu.Unlock()

	for _, s := range extra {
		if err := fork.Bind(s.Name, s); err != nil {
			return nil, err
		}
	}
	return fork, nil
}

// Isolate returns a new scope holding only the named bindings of this one,
// in binding order, plus extra. Names not bound here are skipped.
func (m *Memory) Isolate(names []string, extra ...*Stuff) (*Memory, error) {
	keep := make(map[string]struct{}, len(names))
	for _, name := range names {
		keep[name] = struct{}{}
	}

	m.mu.Lock()
	scope := &Memory{entries: make(map[string]*Stuff, len(names)+len(extra))}
	for _, name := range m.order {
		if _, ok := keep[name]; ok {
			scope.entries[name] = m.entries[name]
			scope.order = append(scope.order, name)
		}
	}
	m.mu.Unlock()

	for _, s := range extra {
		if err := scope.Bind(s.Name, s); err != nil {
			return nil, err
		}
	}
	return scope, nil
}

// Names returns the bound names in binding order.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// Len returns the number of bindings.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Main returns the name of the last bound entry.
func (m *Memory) Main() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) == 0 {
		return "", false
	}
	return m.order[len(m.order)-1], true
}

// Variables returns every binding as a cty value, keyed by name, for use in
// expression evaluation.
func (m *Memory) Variables() map[string]cty.Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	vars := make(map[string]cty.Value, len(m.entries))
	for name, s := range m.entries {
		vars[name] = s.Value()
	}
	return vars
}
