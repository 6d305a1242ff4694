package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/pipe"
)

// ValidateRegistry performs a parity check between the pipe library and Go
// code: every func pipe must name a registered function. Functions that no
// pipe uses are only logged.
func (r *Registry) ValidateRegistry(ctx context.Context, lib *pipe.Library) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	used := make(map[string]struct{})
	for _, code := range lib.Codes() {
		def, _ := lib.Get(code)
		spec, ok := def.Spec.(*pipe.FuncSpec)
		if !ok || spec.FunctionName == "" {
			continue
		}
		used[spec.FunctionName] = struct{}{}
		if _, ok := r.funcs[spec.FunctionName]; !ok {
			errs = append(errs, fmt.Sprintf("pipe '%s': function '%s' is not registered", code, spec.FunctionName))
		}
	}

	for _, name := range r.Names() {
		if _, ok := used[name]; !ok {
			logger.Debug("Registered function is not used by any pipe.", "function", name)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	logger.Debug("Registry validation passed.", "functions", len(r.funcs))
	return nil
}
