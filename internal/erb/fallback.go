package erb

import (
	"strconv"
	"strings"
)

const heredocDelimiter = "ERB_TEMPLATE"

// Prepare returns parse-ready source for template src: the lowered program,
// or the Fallback wrapping when nesting does not balance. In the latter
// case fellBack is true and err holds the *StructuralError.
func Prepare(src string) (out string, fellBack bool, err error) {
	out, err = Transform(src)
	if err == nil {
		return out, false, nil
	}
	return Fallback(src), true, err
}

// Fallback wraps raw template text, untouched, in a single non-interpolating
// heredoc string literal. The result parses for any input, so a template
// that cannot be lowered still yields a syntax tree (one string node).
func Fallback(raw string) string {
	delim := heredocDelimiter
	for i := 1; strings.Contains(raw, delim); i++ {
		delim = heredocDelimiter + "_" + strconv.Itoa(i)
	}
	var b strings.Builder
	b.Grow(len(raw) + 2*len(delim) + 8)
	b.WriteString("<<~'")
	b.WriteString(delim)
	b.WriteString("'\n")
	b.WriteString(raw)
	if !strings.HasSuffix(raw, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(delim)
	b.WriteByte('\n')
	return b.String()
}
