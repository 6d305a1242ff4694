package multiplicity

import (
	"fmt"
	"regexp"
	"strconv"
)

// Kind enumerates the three cardinalities.
type Kind int

const (
	// One is a single value. It is the zero value.
	One Kind = iota
	// Variable is a list of any length.
	Variable
	// Fixed is a list of exactly N values.
	Fixed
)

func (k Kind) String() string {
	switch k {
	case One:
		return "one"
	case Variable:
		return "variable"
	case Fixed:
		return "fixed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Multiplicity is the cardinality of a binding. N is only meaningful for Fixed.
type Multiplicity struct {
	Kind Kind
	N    int
}

// Single is the default, exactly-one multiplicity.
var Single = Multiplicity{Kind: One}

// List returns the unbounded list multiplicity.
func List() Multiplicity {
	return Multiplicity{Kind: Variable}
}

// Exactly returns the fixed list multiplicity of n items.
func Exactly(n int) Multiplicity {
	return Multiplicity{Kind: Fixed, N: n}
}

// IsList reports whether values bound with m are lists.
func (m Multiplicity) IsList() bool {
	return m.Kind != One
}

// String returns the bracket suffix: "", "[]" or "[N]".
func (m Multiplicity) String() string {
	switch m.Kind {
	case Variable:
		return "[]"
	case Fixed:
		return "[" + strconv.Itoa(m.N) + "]"
	default:
		return ""
	}
}

// Format appends the bracket suffix to a concept reference.
func (m Multiplicity) Format(ref string) string {
	return ref + m.String()
}

// Check verifies that n items satisfy the multiplicity.
func (m Multiplicity) Check(n int) error {
	switch m.Kind {
	case One:
		if n != 1 {
			return &CardinalityError{Want: m, Got: n}
		}
	case Fixed:
		if n != m.N {
			return &CardinalityError{Want: m, Got: n}
		}
	}
	return nil
}

// Accepts reports whether a value produced under the multiplicity produced
// can be consumed by a binding declared with m. Lists are never collapsed
// into single values and a fixed binding only accepts the same fixed size.
func (m Multiplicity) Accepts(produced Multiplicity) bool {
	switch m.Kind {
	case One:
		return produced.Kind == One
	case Variable:
		return produced.Kind != One
	case Fixed:
		return produced.Kind == Fixed && produced.N == m.N
	default:
		return false
	}
}

// Item returns the multiplicity of one element of a list binding.
func (m Multiplicity) Item() Multiplicity {
	return Single
}

var refPattern = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)?)(?:\[(\d*)\])?$`)

// Parse splits a concept reference such as "invoices.Invoice[3]" into the
// bare reference and its multiplicity.
func Parse(s string) (string, Multiplicity, error) {
	match := refPattern.FindStringSubmatch(s)
	if match == nil {
		return "", Single, &SyntaxError{Input: s, Reason: "expected a concept reference with an optional [] or [N] suffix"}
	}
	ref := match[1]
	switch {
	case !hasBrackets(s):
		return ref, Single, nil
	case match[2] == "":
		return ref, List(), nil
	}
	n, err := strconv.Atoi(match[2])
	if err != nil {
		return "", Single, &SyntaxError{Input: s, Reason: err.Error()}
	}
	if n < 1 {
		return "", Single, &SyntaxError{Input: s, Reason: "a fixed multiplicity must be at least 1"}
	}
	return ref, Exactly(n), nil
}

func hasBrackets(s string) bool {
	return len(s) > 0 && s[len(s)-1] == ']'
}
