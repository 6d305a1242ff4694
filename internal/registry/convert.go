package registry

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// ToStuffValue converts a Go value returned by a function into a cty value.
// It accepts cty values, untyped []any and map[string]any trees, and any
// value gocty can imply a type for (strings, numbers, bools, slices, maps
// and structs with cty tags).
func ToStuffValue(v any) (cty.Value, error) {
	switch v := v.(type) {
	case nil:
		return cty.NilVal, fmt.Errorf("function returned nil")
	case cty.Value:
		if v == cty.NilVal {
			return cty.NilVal, fmt.Errorf("function returned an invalid value")
		}
		return v, nil
	case []any:
		if len(v) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(v))
		for i, e := range v {
			ev, err := ToStuffValue(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(v) == 0 {
			return cty.EmptyObjectVal, nil
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := make(map[string]cty.Value, len(v))
		for _, k := range keys {
			av, err := ToStuffValue(v[k])
			if err != nil {
				return cty.NilVal, fmt.Errorf("key %q: %w", k, err)
			}
			attrs[k] = av
		}
		return cty.ObjectVal(attrs), nil
	}

	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unsupported function result type %T: %w", v, err)
	}
	out, err := gocty.ToCtyValue(v, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("converting function result of type %T: %w", v, err)
	}
	return out, nil
}

// Items splits a converted value into stuff items. A list result must be a
// list, set or tuple; a single result is used as-is.
func Items(v cty.Value, list bool) ([]cty.Value, error) {
	if !list {
		return []cty.Value{v}, nil
	}
	if v.IsNull() || !v.IsKnown() {
		return nil, fmt.Errorf("expected a list result, got null")
	}
	ty := v.Type()
	if !ty.IsListType() && !ty.IsTupleType() && !ty.IsSetType() {
		return nil, fmt.Errorf("expected a list result, got %s", ty.FriendlyName())
	}
	items := make([]cty.Value, 0, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		items = append(items, elem)
	}
	return items, nil
}
