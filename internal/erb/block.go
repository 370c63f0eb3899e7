package erb

import (
	"strconv"
	"strings"
)

// liftBlock lowers a fragment that opens a do-block. sink is the output
// sink for fragments from output tags and empty for code tags.
//
// A fragment that sub-parses as a complete block call is lifted in one
// shot. A fragment that does not parse on its own is an opener whose body
// and terminator follow in later nodes: a capture frame is pushed and stays
// open until the matching terminator. A fragment that parses cleanly but is
// not a top-level block call needs no lifting and liftBlock reports false.
func (l *lowering) liftBlock(code, sink string) bool {
	m := findBlockOpener(code)
	if m == nil {
		return false
	}

	tree, err := subParse(code)
	if err == nil {
		bc, ok := completeBlockCall(tree)
		if !ok {
			return false
		}
		l.liftComplete(bc, sink)
		return true
	}

	var params string
	if m[2] >= 0 {
		params = strings.TrimSpace(code[m[2]:m[3]])
	}
	pre, assign := code[:m[0]], ""
	if sink == "" {
		assign, pre = splitAssignment(pre)
	}
	l.openCapture(callExpression(pre), params, assign)
	if rest := strings.TrimSpace(code[m[1]:]); rest != "" {
		l.emit(rest)
	}
	return true
}

// openCapture emits the call append, the lambda header and the inner
// buffer initializer, then pushes a capture frame. With an assignment the
// call append is deferred to the terminator.
func (l *lowering) openCapture(call, params, assign string) {
	if call != "" && assign == "" {
		l.appendOutput(call)
	}
	name := l.nextLambda()
	if params == "" {
		l.emit(name + " = lambda do")
	} else {
		l.emit(name + " = lambda do |" + params + "|")
	}
	buf := innerBufferName(l.captureDepth() + 1)
	l.emit(buf + ` = ""`)

	opener := strings.TrimSpace(call + " do")
	l.stack = append(l.stack, frame{
		kind:   captureFrame,
		opener: opener,
		lambda: name,
		args:   callArguments(params),
		buffer: buf,
		assign: assign,
		call:   call,
	})
}

// liftComplete lifts a block call whose call, parameters and body all sit in
// one fragment, without leaving a capture frame open.
func (l *lowering) liftComplete(bc *blockCall, sink string) {
	l.openCapture(callExpression(bc.Call), bc.Params, "")
	body := bc.Body
	if sink != "" && len(body) > 0 {
		for _, stmt := range body[:len(body)-1] {
			l.emit(stmt)
		}
		l.appendOutput(sinkCall(sink, body[len(body)-1]))
	} else {
		for _, stmt := range body {
			l.emit(stmt)
		}
	}
	l.closeFrame()
}

// innerBufferName names the capture buffer at the given nesting depth.
// Lambdas close over enclosing locals, so each depth needs its own name.
func innerBufferName(depth int) string {
	if depth <= 1 {
		return InnerBuffer
	}
	return InnerBuffer + "_" + strconv.Itoa(depth)
}
