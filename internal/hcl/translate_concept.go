package hcl

import (
	"context"
	"fmt"

	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/schema"
)

// translateConcept converts a concept block into a concept of domain.
// Parent references are resolved later, when the registry is frozen.
func (l *Loader) translateConcept(ctx context.Context, domain string, c *schema.Concept) (*concept.Concept, error) {
	code := concept.JoinCode(domain, c.Name)
	ctxlog.FromContext(ctx).Debug("Translating concept.", "concept", code)

	out := &concept.Concept{
		Code:        code,
		Description: c.Description,
		Refines:     c.Refines,
	}
	if c.Structure == nil {
		return out, nil
	}
	if len(c.Structure.Fields) == 0 {
		return nil, fmt.Errorf("concept '%s': structure declares no fields", code)
	}
	for _, f := range c.Structure.Fields {
		field, err := translateField(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("concept '%s', field '%s': %w", code, f.Name, err)
		}
		out.Structure = append(out.Structure, field)
	}
	return out, nil
}

// translateField converts a field block. Fields are required unless they
// say otherwise or carry a default.
func translateField(ctx context.Context, f *schema.Field) (*concept.Field, error) {
	fieldType, err := typeExprToFieldType(ctx, f.Type)
	if err != nil {
		return nil, err
	}

	field := &concept.Field{
		Name:        f.Name,
		Description: f.Description,
		Type:        fieldType,
		Required:    true,
		Choices:     f.Choices,
	}
	if f.Required != nil {
		field.Required = *f.Required
	}
	if f.Default != nil {
		val, diags := f.Default.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid default value: %w", diags)
		}
		if !val.IsNull() {
			field.Default = &val
			field.Required = false
		}
	}
	return field, nil
}
