package erb

import (
	"regexp"
	"strings"
)

// blockOpener finds the block-opening keyword with its optional
// pipe-delimited parameter list.
var blockOpener = regexp.MustCompile(`\bdo\b\s*(?:\|([^|]*)\|)?`)

// assignment matches a leading local, instance, class or global variable
// assignment.
var assignment = regexp.MustCompile(`^\s*((?:@@?|\$)?[A-Za-z_]\w*\s*(?:\|\||&&)?=)\s*(.+)$`)

// findBlockOpener returns the submatch indexes of the last block keyword in
// code that is not inside a string literal, or nil.
func findBlockOpener(code string) []int {
	var last []int
	for _, m := range blockOpener.FindAllStringSubmatchIndex(code, -1) {
		if !inString(code, m[0]) {
			last = m
		}
	}
	return last
}

// inString reports whether byte offset pos of code falls inside a quoted
// string literal.
func inString(code string, pos int) bool {
	var quote byte
	for i := 0; i < pos && i < len(code); i++ {
		c := code[i]
		switch {
		case quote != 0 && c == '\\':
			i++
		case quote != 0 && c == quote:
			quote = 0
		case quote == 0 && (c == '"' || c == '\'' || c == '`'):
			quote = c
		}
	}
	return quote != 0
}

// splitAssignment separates `x = call` into the assignment (`x =`) and the
// call. Comparisons and other fragments come back unchanged with an empty
// assignment.
func splitAssignment(pre string) (assign, call string) {
	m := assignment.FindStringSubmatch(strings.TrimSpace(pre))
	if m == nil || strings.ContainsRune("=~>", rune(m[2][0])) {
		return "", pre
	}
	return m[1], m[2]
}

// blockPass rewrites call to pass lambda as its block argument. It returns
// "" when call is not a plain method call.
func blockPass(call, lambda string) string {
	switch {
	case strings.HasSuffix(call, "()"):
		return strings.TrimSuffix(call, ")") + "&" + lambda + ")"
	case strings.HasSuffix(call, ")"):
		return strings.TrimSuffix(call, ")") + ", &" + lambda + ")"
	case isCallName(call):
		return call + "(&" + lambda + ")"
	}
	return ""
}

// inlineConditional finds a trailing conditional keyword inside an output
// fragment.
var inlineConditional = regexp.MustCompile(`\s(if|unless)\s`)

var (
	controlOpeners = []string{"if", "unless", "while", "until", "for", "case", "begin"}
	continuations  = []string{"elsif", "else", "when", "in", "rescue", "ensure"}
)

// startsWithKeyword reports whether code begins with one of keywords as a
// whole word.
func startsWithKeyword(code string, keywords []string) bool {
	for _, kw := range keywords {
		if !strings.HasPrefix(code, kw) {
			continue
		}
		rest := code[len(kw):]
		if rest == "" || !isIdentByte(rest[0]) {
			return true
		}
	}
	return false
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '?' || b == '!' || b == ':' ||
		('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

// isTerminator reports whether code closes the innermost open block.
func isTerminator(code string) bool {
	code = strings.TrimSpace(strings.TrimRight(code, ";"))
	return code == "end"
}

// stripSuppression removes leading whitespace and line-suppression markers
// (`<%-`) from a code fragment.
func stripSuppression(code string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(code), "-"))
}

// quoteLiteral renders s as a double-quoted host string literal.
// Interpolation openers are escaped so the literal is inert.
func quoteLiteral(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '#':
			if i+1 < len(s) && (s[i+1] == '{' || s[i+1] == '@' || s[i+1] == '$') {
				b.WriteString(`\#`)
			} else {
				b.WriteByte('#')
			}
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// callExpression turns the text before a block keyword into an expression
// whose value can be appended to a buffer. A bareword call with unparenthesized
// arguments (`form_for @user, url: x`) gains parentheses; anything else,
// including index-style receivers and assignments, is left as written.
func callExpression(pre string) string {
	pre = strings.TrimSpace(pre)
	name, rest, found := strings.Cut(pre, " ")
	if !found {
		return pre
	}
	rest = strings.TrimSpace(rest)
	if rest == "" || !isCallName(name) {
		return pre
	}
	if strings.HasPrefix(rest, "(") || strings.HasSuffix(rest, ")") {
		return pre
	}
	if strings.ContainsRune("[=<>|&.?^", rune(rest[0])) {
		return pre
	}
	// binary operator: `a - b`, `a * b`
	if strings.ContainsRune("+-*/%", rune(rest[0])) && len(rest) > 1 && rest[1] == ' ' {
		return pre
	}
	return name + "(" + rest + ")"
}

func isCallName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !isIdentByte(c) && c != '.' && c != '@' {
			return false
		}
	}
	return true
}

// callArguments derives invocation arguments from a block parameter list:
// defaults are dropped, destructuring groups are flattened and block-local
// variables (after `;`) are removed.
func callArguments(params string) string {
	params, _, _ = strings.Cut(params, ";")
	params = strings.NewReplacer("(", "", ")", "").Replace(params)

	var args []string
	for _, p := range strings.Split(params, ",") {
		p = strings.TrimSpace(p)
		if i := strings.Index(p, "="); i >= 0 {
			p = strings.TrimSpace(p[:i])
		}
		if name, _, ok := strings.Cut(p, ":"); ok && !strings.HasPrefix(p, "**") {
			name = strings.TrimSpace(name)
			p = name + ": " + name
		}
		if p != "" {
			args = append(args, p)
		}
	}
	return strings.Join(args, ", ")
}
