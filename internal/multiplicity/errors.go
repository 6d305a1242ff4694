package multiplicity

import "fmt"

// SyntaxError reports a malformed concept reference.
type SyntaxError struct {
	Input  string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid concept reference %q: %s", e.Input, e.Reason)
}

// CardinalityError reports a number of items that does not fit a multiplicity.
type CardinalityError struct {
	Want Multiplicity
	Got  int
}

func (e *CardinalityError) Error() string {
	switch e.Want.Kind {
	case One:
		return fmt.Sprintf("expected exactly one value, got %d", e.Got)
	case Fixed:
		return fmt.Sprintf("expected a list of exactly %d items, got %d", e.Want.N, e.Got)
	default:
		return fmt.Sprintf("unexpected item count %d", e.Got)
	}
}
