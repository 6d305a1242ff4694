package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/memory"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// TagStyle selects how block references are delimited.
type TagStyle string

const (
	TagTicks          TagStyle = "ticks"
	TagXML            TagStyle = "xml"
	TagSquareBrackets TagStyle = "square_brackets"
	TagNone           TagStyle = "no_tag"
)

// ParseTagStyle validates a tag style name. The empty string selects ticks.
func ParseTagStyle(s string) (TagStyle, error) {
	switch TagStyle(s) {
	case "":
		return TagTicks, nil
	case TagTicks, TagXML, TagSquareBrackets, TagNone:
		return TagStyle(s), nil
	default:
		return "", fmt.Errorf("unknown tag style %q: must be one of ticks, xml, square_brackets, no_tag", s)
	}
}

// Scope is the read side of working memory.
type Scope interface {
	Lookup(name string) (*memory.Stuff, error)
}

// Visual is an image or document referenced by a rendered template. The
// text carries a placeholder such as "[Image 1]" in its place.
type Visual struct {
	Variable string
	Concept  string
	Value    cty.Value
	Index    int
}

// Rendered is the result of expanding a template.
type Rendered struct {
	Text    string
	Visuals []Visual
}

// Resolver expands templates. It needs the concept registry to tell visual
// content apart from text.
type Resolver struct {
	Concepts *concept.Registry
	TagStyle TagStyle
}

// NewResolver returns a resolver using the given tag style.
func NewResolver(concepts *concept.Registry, style TagStyle) *Resolver {
	if style == "" {
		style = TagTicks
	}
	return &Resolver{Concepts: concepts, TagStyle: style}
}

// RenderString parses and renders src.
func (r *Resolver) RenderString(src string, scope Scope) (*Rendered, error) {
	t, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return r.Render(t, scope)
}

// Render expands every reference of t against scope.
func (r *Resolver) Render(t *Template, scope Scope) (*Rendered, error) {
	out := &Rendered{}
	var sb strings.Builder
	for _, seg := range t.segments {
		if seg.ref == nil {
			sb.WriteString(seg.literal)
			continue
		}
		text, err := r.renderRef(*seg.ref, scope, out)
		if err != nil {
			return nil, err
		}
		sb.WriteString(text)
	}
	out.Text = sb.String()
	return out, nil
}

func (r *Resolver) renderRef(ref Reference, scope Scope, out *Rendered) (string, error) {
	stuff, err := scope.Lookup(ref.Root())
	if err != nil {
		if ref.Marker == OptionalBlock {
			return "", nil
		}
		return "", fmt.Errorf("rendering %s: %w", ref, err)
	}

	if len(ref.Path) == 1 && r.Concepts.IsVisual(stuff.Concept) {
		label := "Image"
		if r.Concepts.IsCompatible(concept.PDF, stuff.Concept) {
			label = "Document"
		}
		placeholders := make([]string, 0, len(stuff.Items))
		for _, item := range stuff.Items {
			v := Visual{Variable: ref.Root(), Concept: stuff.Concept, Value: item, Index: len(out.Visuals) + 1}
			out.Visuals = append(out.Visuals, v)
			placeholders = append(placeholders, fmt.Sprintf("[%s %d]", label, v.Index))
		}
		if ref.Marker == Inline {
			return strings.Join(placeholders, ", "), nil
		}
		return r.tag(ref.Name(), strings.Join(placeholders, "\n")), nil
	}

	value := stuff.Value()
	for _, attr := range ref.Path[1:] {
		value, err = getAttr(value, attr)
		if err != nil {
			return "", fmt.Errorf("rendering %s: %w", ref, err)
		}
	}

	if ref.Marker == Inline {
		text, ok := inlineText(value)
		if !ok {
			return "", &NonScalarInlineError{Variable: ref.Name(), Concept: stuff.Concept, Type: value.Type().FriendlyName()}
		}
		return text, nil
	}
	body, err := blockText(value)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", ref, err)
	}
	return r.tag(ref.Name(), body), nil
}

func getAttr(v cty.Value, attr string) (cty.Value, error) {
	switch {
	case v.IsNull():
		return cty.NilVal, fmt.Errorf("cannot read attribute %q of a null value", attr)
	case v.Type().IsObjectType() && v.Type().HasAttribute(attr):
		return v.GetAttr(attr), nil
	case v.Type().IsMapType() && v.HasIndex(cty.StringVal(attr)).True():
		return v.Index(cty.StringVal(attr)), nil
	default:
		return cty.NilVal, fmt.Errorf("%s has no attribute %q", v.Type().FriendlyName(), attr)
	}
}

func (r *Resolver) tag(name, body string) string {
	switch r.TagStyle {
	case TagNone:
		return body
	case TagXML:
		return fmt.Sprintf("<%s>\n%s\n</%s>", name, body, name)
	case TagSquareBrackets:
		return fmt.Sprintf("[%s]\n%s\n[/%s]", name, body, name)
	default:
		return fmt.Sprintf("%s: ```\n%s\n```", name, body)
	}
}

// inlineText renders scalars and lists of scalars. Pages and text-with-images
// collapse to their text.
func inlineText(v cty.Value) (string, bool) {
	if v.IsNull() {
		return "", true
	}
	ty := v.Type()
	switch {
	case ty.IsPrimitiveType():
		return scalarText(v), true
	case ty.IsObjectType() && ty.HasAttribute("text") && ty.HasAttribute("images"):
		return scalarText(v.GetAttr("text")), true
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		parts := make([]string, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			if elem.IsNull() || !elem.Type().IsPrimitiveType() {
				return "", false
			}
			parts = append(parts, scalarText(elem))
		}
		return strings.Join(parts, ", "), true
	default:
		return "", false
	}
}

func scalarText(v cty.Value) string {
	if v.IsNull() {
		return ""
	}
	switch v.Type() {
	case cty.String:
		return v.AsString()
	case cty.Number:
		return v.AsBigFloat().Text('f', -1)
	case cty.Bool:
		if v.True() {
			return "true"
		}
		return "false"
	default:
		return v.GoString()
	}
}

// blockText renders any value for a block: text as-is, lists as bullet
// lines, structures as indented JSON.
func blockText(v cty.Value) (string, error) {
	if text, ok := inlineText(v); ok && !isCollection(v) {
		return text, nil
	}
	ty := v.Type()
	if ty.IsListType() || ty.IsTupleType() || ty.IsSetType() {
		var lines []string
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			text, err := blockText(elem)
			if err != nil {
				return "", err
			}
			lines = append(lines, "• "+strings.ReplaceAll(text, "\n", "\n  "))
		}
		return strings.Join(lines, "\n"), nil
	}
	raw, err := ctyjson.Marshal(v, ty)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func isCollection(v cty.Value) bool {
	ty := v.Type()
	return ty.IsListType() || ty.IsTupleType() || ty.IsSetType()
}

// CheckVisualTags verifies that each visual input of a pipe is referenced by
// at least one marker.
func CheckVisualTags(pipeCode string, visualInputs []string, refs []Reference) error {
	referenced := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		referenced[ref.Root()] = struct{}{}
	}
	for _, name := range visualInputs {
		if _, ok := referenced[name]; !ok {
			return &UntaggedVisualInputError{Pipe: pipeCode, Variable: name}
		}
	}
	return nil
}
