package erb

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/rubyastgen/internal/ruby"
)

// subParse parses one tag fragment on its own. The resulting tree is only
// used to slice sub-expression text by node byte ranges.
func subParse(code string) (*ruby.Tree, error) {
	tree, err := ruby.Parse(context.Background(), []byte(code), "<fragment>")
	if err != nil {
		return nil, &SubParseError{Fragment: code, Err: err}
	}
	return tree, nil
}

// opensBlock reports whether code leaves a construct open for a later
// terminator: it does not parse alone but does once `end` is appended.
func opensBlock(code string) bool {
	if _, err := subParse(code); err == nil {
		return false
	}
	_, err := subParse(code + "\nend")
	return err == nil
}

// branch is one arm of a conditional recovered from a fragment. Keyword is
// "if", "unless", "elsif" or "else"; Cond is empty for "else". Prelude holds
// the leading statements of the arm and Value the final (output) one.
type branch struct {
	Keyword string
	Cond    string
	Prelude []string
	Value   string
}

// conditionalBranches reports the arms of tree's sole statement when that
// statement is a conditional: a modifier (`x if c`, `x unless c`) or a full
// if/unless expression with optional elsif/else arms.
func conditionalBranches(tree *ruby.Tree) ([]branch, bool) {
	stmt := ruby.SoleStatement(tree.Root())
	if stmt == nil {
		return nil, false
	}
	switch stmt.Type() {
	case "if_modifier", "unless_modifier":
		body := stmt.ChildByFieldName("body")
		cond := stmt.ChildByFieldName("condition")
		if body == nil || cond == nil {
			return nil, false
		}
		return []branch{{
			Keyword: strings.TrimSuffix(stmt.Type(), "_modifier"),
			Cond:    tree.Text(cond),
			Value:   tree.Text(body),
		}}, true
	case "if", "unless":
		return collectArms(tree, stmt, stmt.Type(), nil), true
	}
	return nil, false
}

// collectArms walks an if/unless/elsif chain, appending one branch per arm.
func collectArms(tree *ruby.Tree, n *sitter.Node, keyword string, arms []branch) []branch {
	arm := branch{Keyword: keyword}
	if cond := n.ChildByFieldName("condition"); cond != nil {
		arm.Cond = tree.Text(cond)
	}
	arm.Prelude, arm.Value = armStatements(tree, n.ChildByFieldName("consequence"))
	arms = append(arms, arm)

	alt := n.ChildByFieldName("alternative")
	if alt == nil {
		return arms
	}
	if alt.Type() == "elsif" {
		return collectArms(tree, alt, "elsif", arms)
	}
	elseArm := branch{Keyword: "else"}
	elseArm.Prelude, elseArm.Value = armStatements(tree, alt)
	return append(arms, elseArm)
}

// armStatements splits the statements of a then/else node into the leading
// statements and the last one.
func armStatements(tree *ruby.Tree, n *sitter.Node) ([]string, string) {
	stmts := ruby.NamedChildren(n)
	if len(stmts) == 0 {
		return nil, ""
	}
	prelude := make([]string, 0, len(stmts)-1)
	for _, s := range stmts[:len(stmts)-1] {
		prelude = append(prelude, tree.Text(s))
	}
	return prelude, tree.Text(stmts[len(stmts)-1])
}

// blockCall is a complete block call sliced from a single fragment:
// `call do |params| body end`.
type blockCall struct {
	Call   string
	Params string
	Body   []string
}

// completeBlockCall reports the parts of tree's sole statement when it is a
// method call carrying a do...end block.
func completeBlockCall(tree *ruby.Tree) (*blockCall, bool) {
	stmt := ruby.SoleStatement(tree.Root())
	if stmt == nil || (stmt.Type() != "call" && stmt.Type() != "method_call") {
		return nil, false
	}
	block := stmt.ChildByFieldName("block")
	if block == nil || block.Type() != "do_block" {
		return nil, false
	}

	bc := &blockCall{
		Call: strings.TrimSpace(tree.Slice(stmt.StartByte(), block.StartByte())),
	}
	if bc.Call == "" {
		return nil, false
	}
	if params := block.ChildByFieldName("parameters"); params != nil {
		bc.Params = strings.TrimSpace(strings.Trim(tree.Text(params), "|"))
	}

	for _, c := range ruby.NamedChildren(block) {
		switch c.Type() {
		case "block_parameters":
			continue
		case "body_statement":
			for _, s := range ruby.NamedChildren(c) {
				bc.Body = append(bc.Body, tree.Text(s))
			}
		default:
			bc.Body = append(bc.Body, tree.Text(c))
		}
	}
	return bc, true
}
