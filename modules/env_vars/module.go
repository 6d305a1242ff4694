// Package env_vars exposes the process environment to func pipes.
package env_vars

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vk/pipegrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Output is the result of env_vars: every variable under 'all'.
type Output struct {
	All map[string]string `cty:"all"`
}

// EnvVars returns the whole environment.
func EnvVars(_ context.Context, _ registry.Inputs) (any, error) {
	envMap := make(map[string]string)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 {
			envMap[pair[0]] = pair[1]
		}
	}
	return Output{All: envMap}, nil
}

// EnvLookup returns the value of the variable named by the 'name' input.
// An unset variable is an error; an empty one is not.
func EnvLookup(_ context.Context, in registry.Inputs) (any, error) {
	name, err := in.Text("name")
	if err != nil {
		return nil, err
	}
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil, fmt.Errorf("environment variable %q is not set", name)
	}
	return v, nil
}

// Register registers the functions with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterFunc("env_vars", "Returns every environment variable under 'all'.", EnvVars)
	r.RegisterFunc("env_lookup", "Returns the environment variable named by the 'name' input.", EnvLookup)
}
