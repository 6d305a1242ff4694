package concept

import (
	"regexp"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// NativeDomain is the domain of the built-in concepts.
const NativeDomain = "native"

// Codes of the native concepts.
const (
	Text          = "native.Text"
	Number        = "native.Number"
	Image         = "native.Image"
	PDF           = "native.PDF"
	TextAndImages = "native.TextAndImages"
	Page          = "native.Page"
)

var (
	namePattern   = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)
	domainPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// Concept is a named type descriptor.
type Concept struct {
	Code        string
	Description string
	// Refines is the code of the parent concept, or empty. Bare names are
	// accepted before the registry is frozen and resolved against the
	// concept's own domain.
	Refines   string
	Structure []*Field

	native bool
}

// Domain returns the namespace part of the code.
func (c *Concept) Domain() string {
	domain, _ := SplitCode(c.Code)
	return domain
}

// Name returns the local part of the code.
func (c *Concept) Name() string {
	_, name := SplitCode(c.Code)
	return name
}

// IsStructured reports whether the concept declares its own fields.
func (c *Concept) IsStructured() bool {
	return len(c.Structure) > 0
}

// IsNative reports whether the concept is one of the built-in concepts.
func (c *Concept) IsNative() bool {
	return c.native
}

// Field returns the named structure field.
func (c *Concept) Field(name string) (*Field, bool) {
	for _, f := range c.Structure {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// SplitCode splits "domain.Name" into its parts. A bare name yields an empty
// domain.
func SplitCode(code string) (string, string) {
	if i := strings.LastIndexByte(code, '.'); i >= 0 {
		return code[:i], code[i+1:]
	}
	return "", code
}

// JoinCode builds a concept code from its parts.
func JoinCode(domain, name string) string {
	return domain + "." + name
}

var (
	imageType = cty.Object(map[string]cty.Type{"url": cty.String})
	pdfType   = cty.Object(map[string]cty.Type{"url": cty.String})
	pageType  = cty.Object(map[string]cty.Type{
		"text":   cty.String,
		"images": cty.List(imageType),
	})
)

func natives() []*Concept {
	return []*Concept{
		{Code: Text, Description: "A text", native: true},
		{Code: Number, Description: "A number", native: true},
		{Code: Image, Description: "An image", native: true},
		{Code: PDF, Description: "A PDF document", native: true},
		{Code: TextAndImages, Description: "A text with attached images", native: true},
		{Code: Page, Description: "The content of one document page", native: true},
	}
}

func nativeType(code string) cty.Type {
	switch code {
	case Text:
		return cty.String
	case Number:
		return cty.Number
	case Image:
		return imageType
	case PDF:
		return pdfType
	case TextAndImages, Page:
		return pageType
	default:
		return cty.DynamicPseudoType
	}
}
