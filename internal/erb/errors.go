package erb

import (
	"fmt"
	"strings"
)

// StructuralError reports a template whose control or block nesting does
// not balance: openers left unterminated at the end of the walk. Callers
// recover by wrapping the raw template with Fallback.
type StructuralError struct {
	// Unclosed lists the openers still pending at end of input, outermost
	// first.
	Unclosed []string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("erb: %d unterminated block(s): %s", len(e.Unclosed), strings.Join(e.Unclosed, ", "))
}

// SubParseError reports that a single tag fragment could not be parsed on
// its own. It is always recovered locally by taking the non-decomposed
// emission path.
type SubParseError struct {
	Fragment string
	Err      error
}

func (e *SubParseError) Error() string {
	return fmt.Sprintf("erb: sub-parse %q: %v", e.Fragment, e.Err)
}

func (e *SubParseError) Unwrap() error {
	return e.Err
}
