// This file contains the logic for parsing field type expressions (e.g.,
// `text`, `list(integer)`) into concept field types.

package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/ctxlog"
)

var primitiveKinds = map[string]concept.FieldKind{
	"text":    concept.KindText,
	"string":  concept.KindText,
	"integer": concept.KindInteger,
	"number":  concept.KindNumber,
	"boolean": concept.KindBoolean,
	"bool":    concept.KindBoolean,
	"date":    concept.KindDate,
}

// typeExprToFieldType converts an HCL type expression into a field type.
// A missing type means text.
func typeExprToFieldType(ctx context.Context, expr hcl.Expression) (concept.FieldType, error) {
	logger := ctxlog.FromContext(ctx)
	text := concept.Primitive(concept.KindText)

	if expr == nil {
		return text, nil
	}
	if val, diags := expr.Value(nil); !diags.HasErrors() && val.IsNull() {
		logger.Debug("Type expression is absent, defaulting to text.")
		return text, nil
	}

	switch v := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		logger.Debug("Parsing type expression as a function call.", "call", v.Name)
		switch v.Name {
		case "list":
			if len(v.Args) != 1 {
				return text, fmt.Errorf("list() requires exactly one argument, got %d", len(v.Args))
			}
			item, err := typeExprToFieldType(ctx, v.Args[0])
			if err != nil {
				return text, err
			}
			return concept.ListOf(item), nil
		case "dict":
			var valueExpr hclsyntax.Expression
			switch len(v.Args) {
			case 1:
				valueExpr = v.Args[0]
			case 2:
				key, err := typeExprToFieldType(ctx, v.Args[0])
				if err != nil {
					return text, err
				}
				if key.Kind != concept.KindText {
					return text, fmt.Errorf("dict keys must be text, got %s", key)
				}
				valueExpr = v.Args[1]
			default:
				return text, fmt.Errorf("dict() requires one or two arguments, got %d", len(v.Args))
			}
			value, err := typeExprToFieldType(ctx, valueExpr)
			if err != nil {
				return text, err
			}
			return concept.DictOf(value), nil
		default:
			return text, fmt.Errorf("unknown type constructor function %q", v.Name)
		}

	case *hclsyntax.ScopeTraversalExpr:
		if len(v.Traversal) != 1 {
			return text, fmt.Errorf("invalid type keyword: traversal path is not a single identifier")
		}
		rootName := v.Traversal.RootName()
		logger.Debug("Parsing type expression as a primitive.", "keyword", rootName)
		kind, ok := primitiveKinds[rootName]
		if !ok {
			return text, fmt.Errorf("unknown primitive type %q", rootName)
		}
		return concept.Primitive(kind), nil

	default:
		return text, fmt.Errorf("unsupported expression for type definition: %T", v)
	}
}
