package decompile

import (
	"strings"

	"github.com/mna/unspool/bytecode"
	"github.com/mna/unspool/codeobject"
)

// Decompiler drives decompilation of a single code object: one instruction
// cursor, one symbolic operand stack, and the current indentation level and
// active loop context for whatever block is presently being decompiled.
// A nested function/lambda/class body gets its own Decompiler (fresh
// cursor and stack over the nested code object); a nested block within the
// same code object (a loop body, an if branch, a try clause) gets a
// sub-Decompiler sharing this one's cursor and stack at one deeper indent,
// bounded by cur.pushStop.
type Decompiler struct {
	code    *codeobject.Code
	version bytecode.Version
	cur     *cursor
	stack   *opstack
	indent  int
	loop    *loopCtx
}

// loopCtx records the byte-range of the innermost active loop, set by
// SETUP_LOOP and consulted by loopBodyEnd to find a loop body's back-edge.
type loopCtx struct {
	start, end int
}

func newDecompiler(code *codeobject.Code, version bytecode.Version, indent int) *Decompiler {
	return &Decompiler{
		code:    code,
		version: version,
		cur:     newCursor(code),
		stack:   &opstack{},
		indent:  indent,
	}
}

// sub returns a Decompiler for a nested block within the same code object,
// sharing this one's cursor and operand stack at one deeper indent.
func (d *Decompiler) sub() *Decompiler {
	return &Decompiler{
		code:    d.code,
		version: d.version,
		cur:     d.cur,
		stack:   d.stack,
		indent:  d.indent + 1,
		loop:    d.loop,
	}
}

func (d *Decompiler) indentText() string {
	return strings.Repeat("    ", d.indent)
}

// handlerFunc implements one opcode's contribution to the decompile: it may
// push/pop the operand stack, emit into out, or both.
type handlerFunc func(d *Decompiler, out stmtMap) error

// handlers is the static opcode dispatch table: one ordinary function per
// mnemonic, never reflection-based method lookup.
var handlers map[bytecode.Op]handlerFunc

func init() {
	handlers = map[bytecode.Op]handlerFunc{}
	registerExprHandlers(handlers)
	registerStmtHandlers(handlers)
	registerTargetHandlers(handlers)
	registerStructuralHandlers(handlers)
}

// Run is the driver loop: decode one opcode at a time, stopping
// before consuming one of terminators or once the cursor exhausts its
// active stop bound, dispatching every other opcode to its handler. An
// empty result renders as a single "pass" at the block's current line.
func (d *Decompiler) Run(terminators ...bytecode.Op) (stmtMap, error) {
	out := make(stmtMap)
	for {
		op, ok, err := d.cur.nextOpcode()
		if err != nil {
			return nil, err
		}
		if !ok || containsOp(terminators, op) {
			break
		}
		h, known := handlers[op]
		if !known {
			return nil, &InputMalformedError{Code: d.code, Offset: d.cur.i, Reason: "unrecognized opcode " + op.String()}
		}
		if _, err := d.cur.readOpcode(op); err != nil {
			return nil, err
		}
		if err := h(d, out); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		out.emit(d.cur.getLine(), d.indentText()+"pass")
	}
	return out, nil
}

// runBlock decompiles a nested block within this code object up to (but
// not including) endOffset, at one deeper indent, restoring the cursor's
// stop bound afterward.
func (d *Decompiler) runBlock(endOffset int, terminators ...bytecode.Op) (stmtMap, error) {
	child := d.sub()
	d.cur.pushStop(endOffset)
	body, err := child.Run(terminators...)
	d.cur.popStop()
	return body, err
}

// DecompileCode is the first exposed driver entry point: it decompiles
// code's top-level instruction stream under the given language version and
// returns the resulting line-indexed source.
func DecompileCode(code *codeobject.Code, version bytecode.Version) (map[int]string, error) {
	d := newDecompiler(code, version, 0)
	out, err := d.Run()
	if err != nil {
		return nil, err
	}
	return map[int]string(out), nil
}

// FormatLines is the second exposed driver entry point: it joins src's
// lines 1..max(src) with "\n", inserting empty strings for any absent line
// number so the result keeps the original file's line numbering intact.
func FormatLines(src map[int]string) string {
	max := 0
	for line := range src {
		if line > max {
			max = line
		}
	}
	lines := make([]string, max)
	for i := 1; i <= max; i++ {
		lines[i-1] = src[i]
	}
	return strings.Join(lines, "\n")
}
