// Package document turns parsed syntax trees into serialisable documents
// and writes them to disk, one JSON file per source file.
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/segmentio/encoding/json"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/rubyastgen/internal/ruby"
)

// Lowering outcomes recorded on template documents.
const (
	LoweringTransformed = "transformed"
	LoweringFallback    = "fallback"
)

// Node is one syntax tree node. Lines are 1-based, columns 0-based.
type Node struct {
	Type        string  `json:"type"`
	Field       string  `json:"field,omitempty"`
	StartLine   int     `json:"start_line"`
	StartColumn int     `json:"start_column"`
	EndLine     int     `json:"end_line"`
	EndColumn   int     `json:"end_column"`
	Text        string  `json:"text,omitempty"`
	Children    []*Node `json:"children,omitempty"`
}

// Document is the per-file output record.
type Document struct {
	FilePath    string         `json:"file_path"`
	RelFilePath string         `json:"rel_file_path"`
	IsERB       bool           `json:"is_erb"`
	Lowering    string         `json:"lowering,omitempty"`
	Annotations map[string]any `json:"annotations,omitempty"`
	AST         *Node          `json:"ast"`
}

// Build converts tree into a Node hierarchy. Named nodes are always kept;
// anonymous tokens are kept only when they occupy a field (operators and
// the like). Leaves carry their source text.
func Build(tree *ruby.Tree) *Node {
	return build(tree, tree.Root(), "")
}

func build(tree *ruby.Tree, n *sitter.Node, field string) *Node {
	start, end := n.StartPoint(), n.EndPoint()
	out := &Node{
		Type:        n.Type(),
		Field:       field,
		StartLine:   int(start.Row) + 1,
		StartColumn: int(start.Column),
		EndLine:     int(end.Row) + 1,
		EndColumn:   int(end.Column),
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		f := n.FieldNameForChild(i)
		if !c.IsNamed() && f == "" {
			continue
		}
		out.Children = append(out.Children, build(tree, c, f))
	}
	if len(out.Children) == 0 {
		out.Text = tree.Text(n)
	}
	return out
}

// OutputPath returns where the document for relPath is written under
// outputDir: the same relative directory, basename plus ".json".
func OutputPath(outputDir, relPath string) string {
	rel := filepath.FromSlash(relPath)
	return filepath.Join(outputDir, filepath.Dir(rel), filepath.Base(rel)+".json")
}

// Marshal encodes doc as indented JSON.
func Marshal(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document %s: %w", doc.RelFilePath, err)
	}
	return append(data, '\n'), nil
}

// Write encodes doc and writes it to path, creating parent directories.
func Write(path string, doc *Document) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// Read loads a document previously written by Write.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", path, err)
	}
	return &doc, nil
}

// Walk visits n and its descendants depth-first, stopping a branch when fn
// returns false.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Types returns the node types in document order, for quick shape checks.
func Types(n *Node) string {
	var b strings.Builder
	Walk(n, func(x *Node) bool {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(x.Type)
		return true
	})
	return b.String()
}
