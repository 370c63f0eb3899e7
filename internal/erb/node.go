package erb

// Node is one element of a tokenized template. The concrete types form a
// closed set: Multi, Static, Dynamic, Escape, Code and Newline.
type Node interface {
	templateNode()
}

// Multi is an ordered sequence of nodes. A tokenized template has exactly
// one Multi at its root.
type Multi struct {
	Children []Node
}

// Static is a literal run of template text.
type Static struct {
	Text string
}

// Dynamic is a legacy direct-output fragment.
type Dynamic struct {
	Text string
}

// Escape wraps an output expression. Escaped reports whether the output is
// HTML-escaped (`<%=`) or emitted raw (`<%==`).
type Escape struct {
	Escaped bool
	Inner   Node
}

// Code is a bare code fragment (`<% ... %>`).
type Code struct {
	Text string
}

// Newline marks a line break in the template source.
type Newline struct{}

func (*Multi) templateNode()   {}
func (*Static) templateNode()  {}
func (*Dynamic) templateNode() {}
func (*Escape) templateNode()  {}
func (*Code) templateNode()    {}
func (*Newline) templateNode() {}

// nodeText returns the text payload of a leaf node.
func nodeText(n Node) string {
	switch n := n.(type) {
	case *Static:
		return n.Text
	case *Dynamic:
		return n.Text
	case *Code:
		return n.Text
	}
	return ""
}
