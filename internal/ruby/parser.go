// Package ruby wraps the tree-sitter Ruby grammar as the host-language
// parser for both plain source files and lowered templates.
package ruby

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"
)

var (
	grammar     *sitter.Language
	grammarOnce sync.Once
)

// Language returns the tree-sitter Ruby grammar. Lazily initialized on first
// call via sync.Once.
func Language() *sitter.Language {
	grammarOnce.Do(func() {
		grammar = ruby.GetLanguage()
	})
	return grammar
}

// SyntaxError reports that source text did not parse cleanly. Line and
// Column locate the first ERROR or MISSING node (1-based line, 0-based
// column).
type SyntaxError struct {
	Origin string
	Line   int
	Column int
	Near   string
}

func (e *SyntaxError) Error() string {
	if e.Near != "" {
		return fmt.Sprintf("ruby: syntax error in %s at %d:%d near %q", e.Origin, e.Line, e.Column, e.Near)
	}
	return fmt.Sprintf("ruby: syntax error in %s at %d:%d", e.Origin, e.Line, e.Column)
}

// Tree is a parsed syntax tree together with the exact source it was
// parsed from. Node byte ranges index into Source.
type Tree struct {
	Source []byte
	Origin string
	tree   *sitter.Tree
}

// Root returns the tree's root node (always a "program" node).
func (t *Tree) Root() *sitter.Node {
	return t.tree.RootNode()
}

// Text returns the exact source slice covered by n.
func (t *Tree) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(t.Source)
}

// Slice returns the source between two byte offsets.
func (t *Tree) Slice(start, end uint32) string {
	if end < start || int(end) > len(t.Source) {
		return ""
	}
	return string(t.Source[start:end])
}

// Parse parses src with a fresh parser, so concurrent calls never share
// parser state. A tree containing error nodes is reported as *SyntaxError.
func Parse(ctx context.Context, src []byte, origin string) (*Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(Language())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("ruby: parse %s: %w", origin, err)
	}
	t := &Tree{Source: src, Origin: origin, tree: tree}

	root := tree.RootNode()
	if root.HasError() {
		return nil, newSyntaxError(t, firstError(root))
	}
	return t, nil
}

func newSyntaxError(t *Tree, n *sitter.Node) *SyntaxError {
	se := &SyntaxError{Origin: t.Origin, Line: 1}
	if n == nil {
		return se
	}
	p := n.StartPoint()
	se.Line = int(p.Row) + 1
	se.Column = int(p.Column)
	near := t.Text(n)
	if i := strings.IndexByte(near, '\n'); i >= 0 {
		near = near[:i]
	}
	if len(near) > 40 {
		near = near[:40]
	}
	se.Near = near
	return se
}

// firstError returns the first ERROR or MISSING node in document order.
func firstError(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstError(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

// NamedChildren returns the named children of n, skipping comments.
func NamedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil || c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SoleStatement returns the only statement of a program node, or nil when
// the program holds zero or several statements.
func SoleStatement(root *sitter.Node) *sitter.Node {
	stmts := NamedChildren(root)
	if len(stmts) != 1 {
		return nil
	}
	return stmts[0]
}
