package concept

import (
	"fmt"
	"slices"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

var dateLayouts = []string{"2006-01-02", time.RFC3339}

// Conform converts a single content value into the runtime type of the
// concept. Structured content has defaults applied, missing required fields
// rejected and field constraints (choices, integer, date) checked.
func (r *Registry) Conform(code string, v cty.Value) (cty.Value, error) {
	if _, err := r.Resolve(code); err != nil {
		return cty.NilVal, err
	}
	if v.IsNull() || !v.IsWhollyKnown() {
		return cty.NilVal, &ConformanceError{Concept: code, Reason: "content is null or unknown"}
	}
	if fields := r.StructureOf(code); fields != nil {
		return conformStructure(code, fields, v)
	}
	target, err := r.ContentType(code)
	if err != nil {
		return cty.NilVal, err
	}
	return conformNative(code, target, v)
}

func conformNative(code string, target cty.Type, v cty.Value) (cty.Value, error) {
	if target.IsObjectType() {
		switch {
		case v.Type() == cty.String && target.HasAttribute("url") && !target.HasAttribute("text"):
			return cty.ObjectVal(map[string]cty.Value{"url": v}), nil
		case v.Type() == cty.String && target.HasAttribute("text"):
			v = cty.ObjectVal(map[string]cty.Value{"text": v})
		}
		if v.Type().IsObjectType() || v.Type().IsMapType() {
			return conformObject(code, target, v)
		}
	}
	out, err := convert.Convert(v, target)
	if err != nil {
		return cty.NilVal, &ConformanceError{Concept: code, Reason: err.Error()}
	}
	return out, nil
}

// conformObject fills list attributes missing from v with empty lists before
// converting, so that {text = "..."} is a valid page.
func conformObject(code string, target cty.Type, v cty.Value) (cty.Value, error) {
	given := v.AsValueMap()
	attrs := make(map[string]cty.Value, len(target.AttributeTypes()))
	for name, attrType := range target.AttributeTypes() {
		raw, ok := given[name]
		switch {
		case ok && !raw.IsNull():
			conv, err := convert.Convert(raw, attrType)
			if err != nil {
				return cty.NilVal, &ConformanceError{Concept: code, Field: name, Reason: err.Error()}
			}
			attrs[name] = conv
		case attrType.IsListType():
			attrs[name] = cty.ListValEmpty(attrType.ElementType())
		default:
			return cty.NilVal, &ConformanceError{Concept: code, Field: name, Reason: "attribute is required"}
		}
	}
	for name := range given {
		if !target.HasAttribute(name) {
			return cty.NilVal, &ConformanceError{Concept: code, Field: name, Reason: "unexpected attribute"}
		}
	}
	return cty.ObjectVal(attrs), nil
}

func conformStructure(code string, fields []*Field, v cty.Value) (cty.Value, error) {
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return cty.NilVal, &ConformanceError{Concept: code, Reason: fmt.Sprintf("expected an object, got %s", v.Type().FriendlyName())}
	}
	given := v.AsValueMap()
	attrs := make(map[string]cty.Value, len(fields))
	for _, f := range fields {
		fieldType := f.Type.CtyType()
		raw, ok := given[f.Name]
		switch {
		case ok && !raw.IsNull():
			conv, err := convert.Convert(raw, fieldType)
			if err != nil {
				return cty.NilVal, &ConformanceError{Concept: code, Field: f.Name, Reason: err.Error()}
			}
			if err := checkField(f, f.Type, conv); err != nil {
				return cty.NilVal, &ConformanceError{Concept: code, Field: f.Name, Reason: err.Error()}
			}
			attrs[f.Name] = conv
		case f.Default != nil:
			conv, err := convert.Convert(*f.Default, fieldType)
			if err != nil {
				return cty.NilVal, &ConformanceError{Concept: code, Field: f.Name, Reason: "default: " + err.Error()}
			}
			attrs[f.Name] = conv
		case f.Required:
			return cty.NilVal, &ConformanceError{Concept: code, Field: f.Name, Reason: "required field is missing"}
		default:
			attrs[f.Name] = cty.NullVal(fieldType)
		}
	}
	for name := range given {
		known := false
		for _, f := range fields {
			if f.Name == name {
				known = true
				break
			}
		}
		if !known {
			return cty.NilVal, &ConformanceError{Concept: code, Field: name, Reason: "unexpected field"}
		}
	}
	return cty.ObjectVal(attrs), nil
}

func checkField(f *Field, t FieldType, v cty.Value) error {
	if v.IsNull() {
		return nil
	}
	switch t.Kind {
	case KindText:
		if len(f.Choices) > 0 && !slices.Contains(f.Choices, v.AsString()) {
			return fmt.Errorf("value %q is not one of %v", v.AsString(), f.Choices)
		}
	case KindInteger:
		if !v.AsBigFloat().IsInt() {
			return fmt.Errorf("value %s is not an integer", v.AsBigFloat().Text('f', -1))
		}
	case KindDate:
		if !isDate(v.AsString()) {
			return fmt.Errorf("value %q is not a date (YYYY-MM-DD or RFC 3339)", v.AsString())
		}
	case KindList:
		if t.Item == nil {
			return nil
		}
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			if err := checkField(f, *t.Item, elem); err != nil {
				return err
			}
		}
	case KindDict:
		if t.Value == nil {
			return nil
		}
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			if err := checkField(f, *t.Value, elem); err != nil {
				return err
			}
		}
	}
	return nil
}

func isDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
