package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/pipegrid/internal/memory"
)

// Module is the interface that all function modules implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Inputs are the declared inputs of a func pipe, keyed by variable name.
type Inputs map[string]*memory.Stuff

// Func is the Go implementation behind a func pipe. The returned value is
// converted with ToStuffValue.
type Func func(ctx context.Context, in Inputs) (any, error)

// RegisteredFunc holds a function and its help text.
type RegisteredFunc struct {
	Fn          Func
	Description string
}

// Registry holds the registered functions of one application instance.
type Registry struct {
	funcs map[string]*RegisteredFunc
}

// New creates an empty registry and registers the given modules into it.
func New(modules ...Module) *Registry {
	r := &Registry{funcs: make(map[string]*RegisteredFunc)}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterFunc registers a function under name. Registering a name twice is
// a programming error and panics.
func (r *Registry) RegisterFunc(name, description string, fn Func) {
	if _, exists := r.funcs[name]; exists {
		panic(fmt.Sprintf("function with name '%s' already registered", name))
	}
	slog.Debug("Registering function.", "name", name)
	r.funcs[name] = &RegisteredFunc{Fn: fn, Description: description}
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	f, ok := r.funcs[name]
	if !ok {
		return nil, false
	}
	return f.Fn, true
}

// Names returns every registered function name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
