// Package erb lowers ERB templates into host-language source that parses
// cleanly and keeps the template's structural shape (calls, blocks,
// conditionals, interpolation targets, bindings) for tree-based analysis.
//
// The lowered program appends every piece of template output to a buffer:
//
//	joern__buffer = ""
//	joern__buffer << "Hello "
//	joern__buffer << joern__template_out_escape(name)
//	return joern__buffer
//
// Output expressions are wrapped in synthetic sink calls so downstream
// analysis can tell raw output from escaped output. Block calls that span
// several tags are lifted into lambdas whose bodies capture output in a
// nested buffer.
package erb

import (
	"strconv"
	"strings"
)

// Identifiers emitted into lowered source. Downstream analysis keys on
// these names.
const (
	OutputBuffer     = "joern__buffer"
	InnerBuffer      = "joern__inner_buffer"
	RawOutputSink    = "joern__template_out_raw"
	EscapeOutputSink = "joern__template_out_escape"
	LambdaPrefix     = "rails_lambda_"
)

// frameKind distinguishes the two kinds of open nesting.
type frameKind int

const (
	controlFrame frameKind = iota
	captureFrame
)

// frame is one open level of nesting. Capture frames belong to a lifted
// block and own an inner buffer. A capture opened by an assignment
// (`x = helper do`) records the assignment and call so the terminator can
// bind the result.
type frame struct {
	kind   frameKind
	opener string
	lambda string
	args   string
	buffer string
	assign string
	call   string
}

// lowering is the per-call state of one transform. It is never shared.
type lowering struct {
	stack         []frame
	pendingStatic []string
	lambdaCounter int
	emitted       []string
}

// Lower returns the lowered statements for template src, in emission order.
// It fails with *StructuralError when control or block nesting does not
// balance.
func Lower(src string) ([]string, error) {
	l := &lowering{}
	l.emit(OutputBuffer + ` = ""`)
	l.visit(Tokenize(src))
	if err := l.err(); err != nil {
		return nil, err
	}
	l.flushStatic()
	l.emit("return " + OutputBuffer)
	return l.emitted, nil
}

// Transform lowers template src into host-language source. It is safe for
// concurrent use: every call owns its state.
func Transform(src string) (string, error) {
	stmts, err := Lower(src)
	if err != nil {
		return "", err
	}
	return strings.Join(stmts, "\n") + "\n", nil
}

func (l *lowering) emit(stmt string) {
	l.emitted = append(l.emitted, stmt)
}

// buffer returns the identifier output currently appends to: the inner
// buffer of the innermost capture frame, else the outer buffer.
func (l *lowering) buffer() string {
	for i := len(l.stack) - 1; i >= 0; i-- {
		if l.stack[i].kind == captureFrame {
			return l.stack[i].buffer
		}
	}
	return OutputBuffer
}

func (l *lowering) captureDepth() int {
	n := 0
	for _, f := range l.stack {
		if f.kind == captureFrame {
			n++
		}
	}
	return n
}

func (l *lowering) appendOutput(expr string) {
	l.emit(l.buffer() + " << " + expr)
}

// err reports unbalanced nesting once the walk is over.
func (l *lowering) err() error {
	if len(l.stack) == 0 {
		return nil
	}
	se := &StructuralError{}
	for _, f := range l.stack {
		se.Unclosed = append(se.Unclosed, f.opener)
	}
	return se
}

func (l *lowering) visit(n Node) {
	switch n := n.(type) {
	case *Multi:
		for _, child := range n.Children {
			l.visit(child)
		}
	case *Static, *Dynamic:
		l.bufferStatic(nodeText(n))
	case *Escape:
		l.flushStatic()
		l.visitEscape(n)
	case *Code:
		l.flushStatic()
		l.visitCode(n.Text)
	case *Newline:
	}
}

// bufferStatic queues a literal run. Runs are coalesced into a single
// append at the next flush.
func (l *lowering) bufferStatic(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	l.pendingStatic = append(l.pendingStatic, strings.TrimRight(text, "\r\n"))
}

func (l *lowering) flushStatic() {
	if len(l.pendingStatic) == 0 {
		return
	}
	l.appendOutput(quoteLiteral(strings.Join(l.pendingStatic, "\n")))
	l.pendingStatic = l.pendingStatic[:0]
}

func sinkFor(escaped bool) string {
	if escaped {
		return EscapeOutputSink
	}
	return RawOutputSink
}

// sinkCall wraps expr in an output sink call. Fragments that may carry a
// trailing comment are placed on their own line so the comment cannot
// swallow the closing parenthesis.
func sinkCall(sink, expr string) string {
	if strings.Contains(expr, "#") {
		return sink + "(\n" + expr + "\n)"
	}
	return sink + "(" + expr + ")"
}

func (l *lowering) visitEscape(n *Escape) {
	code := strings.TrimSpace(nodeText(n.Inner))
	if code == "" {
		return
	}
	sink := sinkFor(n.Escaped)

	if inlineConditional.MatchString(" " + code + " ") {
		if l.lowerInlineConditional(code, sink) {
			return
		}
	}
	if findBlockOpener(code) != nil && l.liftBlock(code, sink) {
		return
	}
	l.appendOutput(sinkCall(sink, code))
}

// lowerInlineConditional emits a full conditional whose arms append the
// sink call on each arm's value. It reports false when the fragment parses
// cleanly but is not a conditional, leaving it to the other rules.
func (l *lowering) lowerInlineConditional(code, sink string) bool {
	tree, err := subParse(code)
	if err != nil {
		return l.splitConditional(code, sink)
	}
	arms, ok := conditionalBranches(tree)
	if !ok {
		return false
	}
	for _, arm := range arms {
		if arm.Cond != "" {
			l.emit(arm.Keyword + " " + arm.Cond)
		} else {
			l.emit(arm.Keyword)
		}
		for _, stmt := range arm.Prelude {
			l.emit(stmt)
		}
		if arm.Value != "" {
			l.appendOutput(sinkCall(sink, arm.Value))
		}
	}
	l.emit("end")
	return true
}

// splitConditional is the degraded path for fragments the sub-parser could
// not confirm: split at the first conditional keyword and emit a
// single-arm conditional.
func (l *lowering) splitConditional(code, sink string) bool {
	loc := inlineConditional.FindStringSubmatchIndex(" " + code + " ")
	if loc == nil {
		return false
	}
	padded := " " + code + " "
	body := strings.TrimSpace(padded[:loc[0]])
	cond := strings.TrimSpace(padded[loc[1]:])
	if body == "" || cond == "" {
		return false
	}
	l.emit(padded[loc[2]:loc[3]] + " " + cond)
	l.appendOutput(sinkCall(sink, body))
	l.emit("end")
	return true
}

func (l *lowering) visitCode(text string) {
	code := stripSuppression(text)
	switch {
	case code == "":
	case startsWithKeyword(code, controlOpeners):
		// `if a then b end` in one tag is already balanced.
		if _, err := subParse(code); err != nil {
			l.stack = append(l.stack, frame{kind: controlFrame, opener: firstWord(code)})
		}
		l.emit(code)
	case startsWithKeyword(code, continuations):
		kw := firstWord(code)
		if len(l.stack) == 0 {
			l.stack = append(l.stack, frame{kind: controlFrame, opener: kw})
		}
		// `else if b` opens a nested conditional with its own terminator.
		if rest := strings.TrimSpace(code[len(kw):]); startsWithKeyword(rest, controlOpeners) && opensBlock(rest) {
			l.stack = append(l.stack, frame{kind: controlFrame, opener: firstWord(rest)})
		}
		l.emit(code)
	case isTerminator(code):
		l.closeFrame()
	case findBlockOpener(code) != nil && l.liftBlock(code, ""):
	default:
		// `x = if a` or a multi-line tag ending in an opener.
		if opensBlock(code) {
			l.stack = append(l.stack, frame{kind: controlFrame, opener: lastLine(code)})
		}
		l.emit(code)
	}
}

// closeFrame handles a terminator by popping the innermost frame. With
// nothing open the terminator belongs to code the walk did not track and
// is emitted as written.
func (l *lowering) closeFrame() {
	if len(l.stack) == 0 {
		l.emit("end")
		return
	}
	top := l.stack[len(l.stack)-1]
	l.stack = l.stack[:len(l.stack)-1]
	if top.kind == controlFrame {
		l.emit("end")
		return
	}
	l.emit(top.buffer)
	l.emit("end")
	if top.assign == "" {
		l.appendOutput(top.lambda + ".call(" + top.args + ")")
		return
	}
	value := blockPass(top.call, top.lambda)
	if value == "" {
		value = top.lambda + ".call(" + top.args + ")"
	}
	l.emit(top.assign + " " + value)
}

func (l *lowering) nextLambda() string {
	name := LambdaPrefix + strconv.Itoa(l.lambdaCounter)
	l.lambdaCounter++
	return name
}

func lastLine(code string) string {
	if i := strings.LastIndexByte(code, '\n'); i >= 0 {
		return strings.TrimSpace(code[i+1:])
	}
	return code
}

func firstWord(code string) string {
	if i := strings.IndexAny(code, " \t\n("); i >= 0 {
		return code[:i]
	}
	return code
}
