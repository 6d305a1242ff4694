package pipe

import (
	"fmt"
	"sort"
)

// Library holds every loaded pipe definition. It is written during startup
// and read concurrently afterwards.
type Library struct {
	pipes  map[string]*Definition
	frozen bool
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{pipes: make(map[string]*Definition)}
}

// Add registers a definition. Codes are unique.
func (l *Library) Add(d *Definition) error {
	if l.frozen {
		return fmt.Errorf("cannot add pipe %q: library is frozen", d.Code)
	}
	if d.Spec == nil {
		return fmt.Errorf("pipe %q has no kind-specific definition", d.Code)
	}
	if _, exists := l.pipes[d.Code]; exists {
		return &DuplicatePipeError{Code: d.Code}
	}
	l.pipes[d.Code] = d
	return nil
}

// Get returns the definition registered under code.
func (l *Library) Get(code string) (*Definition, error) {
	d, ok := l.pipes[code]
	if !ok {
		return nil, &UnknownPipeError{Code: code}
	}
	return d, nil
}

// Codes returns every pipe code, sorted.
func (l *Library) Codes() []string {
	return sortedKeys(l.pipes)
}

// Len returns the number of definitions.
func (l *Library) Len() int {
	return len(l.pipes)
}

// Freeze makes the library read-only.
func (l *Library) Freeze() {
	l.frozen = true
}

// DuplicatePipeError is returned when a code is added twice.
type DuplicatePipeError struct {
	Code string
}

func (e *DuplicatePipeError) Error() string {
	return fmt.Sprintf("pipe %q is already defined", e.Code)
}

// UnknownPipeError is returned when a code does not resolve.
type UnknownPipeError struct {
	Code string
}

func (e *UnknownPipeError) Error() string {
	return fmt.Sprintf("unknown pipe %q", e.Code)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
