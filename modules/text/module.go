// Package text provides func pipe functions that reshape plain text.
package text

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/pipegrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the functions with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterFunc("upper", "Uppercases the 'text' input.", mapText(strings.ToUpper))
	r.RegisterFunc("lower", "Lowercases the 'text' input.", mapText(strings.ToLower))
	r.RegisterFunc("trim", "Strips leading and trailing white space from the 'text' input.", mapText(strings.TrimSpace))
	r.RegisterFunc("split_lines", "Splits the 'text' input into its non-blank lines.", SplitLines)
	r.RegisterFunc("join_lines", "Joins the 'items' list input with newlines.", JoinLines)
	r.RegisterFunc("word_count", "Counts the words of the 'text' input.", WordCount)
}

func mapText(fn func(string) string) registry.Func {
	return func(_ context.Context, in registry.Inputs) (any, error) {
		s, err := in.Text("text")
		if err != nil {
			return nil, err
		}
		return fn(s), nil
	}
}

// SplitLines returns the trimmed, non-blank lines of the 'text' input.
func SplitLines(_ context.Context, in registry.Inputs) (any, error) {
	s, err := in.Text("text")
	if err != nil {
		return nil, err
	}
	lines := []string{}
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// JoinLines joins the 'items' list input with newlines.
func JoinLines(_ context.Context, in registry.Inputs) (any, error) {
	items, err := in.Texts("items")
	if err != nil {
		return nil, err
	}
	return strings.Join(items, "\n"), nil
}

// WordCount returns the number of white-space separated words of 'text'.
func WordCount(_ context.Context, in registry.Inputs) (any, error) {
	s, err := in.Text("text")
	if err != nil {
		return nil, fmt.Errorf("word_count: %w", err)
	}
	return len(strings.Fields(s)), nil
}
