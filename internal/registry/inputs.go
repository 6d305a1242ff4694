package registry

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Value returns the content of the named input as one cty value.
func (in Inputs) Value(name string) (cty.Value, error) {
	s, ok := in[name]
	if !ok {
		return cty.NilVal, fmt.Errorf("input %q is not declared", name)
	}
	return s.Value(), nil
}

// Text returns a single text input as a Go string.
func (in Inputs) Text(name string) (string, error) {
	v, err := in.Value(name)
	if err != nil {
		return "", err
	}
	if v.IsNull() || v.Type() != cty.String {
		return "", fmt.Errorf("input %q is not a single text", name)
	}
	return v.AsString(), nil
}

// Texts returns a list input of texts as Go strings.
func (in Inputs) Texts(name string) ([]string, error) {
	s, ok := in[name]
	if !ok {
		return nil, fmt.Errorf("input %q is not declared", name)
	}
	out := make([]string, 0, len(s.Items))
	for i, item := range s.Items {
		if item.IsNull() || item.Type() != cty.String {
			return nil, fmt.Errorf("input %q: item %d is not a text", name, i)
		}
		out = append(out, item.AsString())
	}
	return out, nil
}
