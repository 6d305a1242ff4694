package template

import (
	"strings"
)

// Marker is the kind of a variable reference.
type Marker int

const (
	Inline Marker = iota
	Block
	OptionalBlock
)

func (m Marker) prefix() string {
	switch m {
	case Block:
		return "@"
	case OptionalBlock:
		return "@?"
	default:
		return "$"
	}
}

// Reference is one variable reference found in a template.
type Reference struct {
	Marker Marker
	// Path is the variable name followed by any attribute names.
	Path   []string
	Offset int
}

// Root returns the referenced variable name.
func (r Reference) Root() string {
	return r.Path[0]
}

// Name returns the dotted path without the marker.
func (r Reference) Name() string {
	return strings.Join(r.Path, ".")
}

func (r Reference) String() string {
	return r.Marker.prefix() + r.Name()
}

type segment struct {
	literal string
	ref     *Reference
}

// Template is a parsed template.
type Template struct {
	source   string
	segments []segment
}

// Source returns the original template text.
func (t *Template) Source() string {
	return t.source
}

// References returns every reference in order of appearance.
func (t *Template) References() []Reference {
	var refs []Reference
	for _, seg := range t.segments {
		if seg.ref != nil {
			refs = append(refs, *seg.ref)
		}
	}
	return refs
}

// References parses src and returns its references.
func References(src string) ([]Reference, error) {
	t, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return t.References(), nil
}

// Parse splits a template into literal text and references.
func Parse(src string) (*Template, error) {
	t := &Template{source: src}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(src); {
		c := src[i]
		if c != '$' && c != '@' {
			lit.WriteByte(c)
			i++
			continue
		}
		if i+1 < len(src) && src[i+1] == c {
			lit.WriteByte(c)
			i += 2
			continue
		}
		if i > 0 && isIdentByte(src[i-1]) {
			lit.WriteByte(c)
			i++
			continue
		}

		marker := Inline
		start := i + 1
		if c == '@' {
			marker = Block
			if start < len(src) && src[start] == '?' {
				marker = OptionalBlock
				start++
			}
		}

		path, end := scanPath(src, start)
		if path == nil {
			if marker == OptionalBlock {
				return nil, &SyntaxError{Offset: i, Reason: "'@?' must be followed by a variable name"}
			}
			lit.WriteByte(c)
			i++
			continue
		}

		flush()
		t.segments = append(t.segments, segment{ref: &Reference{Marker: marker, Path: path, Offset: i}})
		i = end
	}
	flush()
	return t, nil
}

// scanPath reads identifier ( "." identifier )* starting at i.
func scanPath(src string, i int) ([]string, int) {
	ident, end := scanIdent(src, i)
	if ident == "" {
		return nil, i
	}
	path := []string{ident}
	for end < len(src) && src[end] == '.' {
		next, nextEnd := scanIdent(src, end+1)
		if next == "" {
			break
		}
		path = append(path, next)
		end = nextEnd
	}
	return path, end
}

func scanIdent(src string, i int) (string, int) {
	if i >= len(src) || !isIdentStart(src[i]) {
		return "", i
	}
	j := i + 1
	for j < len(src) && isIdentByte(src[j]) {
		j++
	}
	return src[i:j], j
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
