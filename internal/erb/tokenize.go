package erb

import (
	"regexp"
	"strings"
)

// tagPattern matches, in order of preference: a line break or an escaped
// tag marker (group 1), or a complete tag with its optional indicator
// (group 2) and body (group 3). A trailing trim marker `-%>` is consumed.
var tagPattern = regexp.MustCompile(`(?s)(\n|<%%|%%>)|<%(==?|#)?(.*?)-?%>`)

// Tokenize splits template source into a node tree. It never fails: text
// that does not form a complete tag, including an unterminated `<%`, stays
// literal.
func Tokenize(src string) *Multi {
	root := &Multi{}
	pos := 0
	for _, m := range tagPattern.FindAllStringSubmatchIndex(src, -1) {
		text := src[pos:m[0]]
		pos = m[1]

		if m[2] >= 0 {
			token := src[m[2]:m[3]]
			switch token {
			case "\n":
				root.Children = append(root.Children, &Static{Text: text + "\n"}, &Newline{})
			default:
				if text != "" {
					root.Children = append(root.Children, &Static{Text: text})
				}
				// "<%%" -> "<%", "%%>" -> "%>"
				root.Children = append(root.Children, &Static{Text: token[:1] + token[2:]})
			}
			continue
		}

		if text != "" {
			root.Children = append(root.Children, &Static{Text: text})
		}
		indicator := ""
		if m[4] >= 0 {
			indicator = src[m[4]:m[5]]
		}
		code := ""
		if m[6] >= 0 {
			code = src[m[6]:m[7]]
		}

		switch indicator {
		case "#":
			root.Children = append(root.Children, &Code{Text: strings.Repeat("\n", strings.Count(code, "\n"))})
		case "=", "==":
			root.Children = append(root.Children, &Escape{
				Escaped: indicator == "=",
				Inner:   &Dynamic{Text: code},
			})
		default:
			root.Children = append(root.Children, &Code{Text: code})
		}
	}
	if pos < len(src) {
		root.Children = append(root.Children, &Static{Text: src[pos:]})
	}
	return root
}
