package concept

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// FieldKind is the primitive kind of a structure field.
type FieldKind int

const (
	KindText FieldKind = iota
	KindInteger
	KindNumber
	KindBoolean
	KindDate
	KindList
	KindDict
)

func (k FieldKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// FieldType describes the type of a field. Item is set for lists and Value
// for dicts; dict keys are always text.
type FieldType struct {
	Kind  FieldKind
	Item  *FieldType
	Value *FieldType
}

// Primitive returns a scalar field type.
func Primitive(kind FieldKind) FieldType {
	return FieldType{Kind: kind}
}

// ListOf returns a list field type.
func ListOf(item FieldType) FieldType {
	return FieldType{Kind: KindList, Item: &item}
}

// DictOf returns a dict field type with text keys.
func DictOf(value FieldType) FieldType {
	return FieldType{Kind: KindDict, Value: &value}
}

// CtyType returns the runtime type used to store values of this field.
func (t FieldType) CtyType() cty.Type {
	switch t.Kind {
	case KindInteger, KindNumber:
		return cty.Number
	case KindBoolean:
		return cty.Bool
	case KindList:
		if t.Item == nil {
			return cty.List(cty.String)
		}
		return cty.List(t.Item.CtyType())
	case KindDict:
		if t.Value == nil {
			return cty.Map(cty.String)
		}
		return cty.Map(t.Value.CtyType())
	default:
		return cty.String
	}
}

func (t FieldType) String() string {
	switch t.Kind {
	case KindList:
		if t.Item != nil {
			return "list(" + t.Item.String() + ")"
		}
	case KindDict:
		if t.Value != nil {
			return "dict(text, " + t.Value.String() + ")"
		}
	}
	return t.Kind.String()
}

// Field is one named member of a structured concept.
type Field struct {
	Name        string
	Description string
	Type        FieldType
	Required    bool
	Default     *cty.Value
	Choices     []string
}
