package decompile

import "github.com/mna/unspool/bytecode"

// setupLoop implements SETUP_LOOP: the operand is the byte offset,
// relative to the instruction right after it, of the loop's exit point.
// SETUP_LOOP never directly precedes the opcode that distinguishes the
// loop form: the compiler interposes the iterable load (and, for a "for"
// loop, a trailing LOAD_CONST 0 starting index) between SETUP_LOOP and
// FOR_LOOP, and likewise the guard expression's own loads ahead of
// JUMP_IF_FALSE for a "while" loop, so those intervening opcodes have to
// run through ordinary dispatch before the form can be told apart. Both
// forms end with POP_BLOCK just before the loop's else clause (if any) and
// the exit label SETUP_LOOP named.
func setupLoop(d *Decompiler, out stmtMap) error {
	delta, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	exit := d.cur.i + delta

	savedLoop := d.loop
	d.loop = &loopCtx{start: d.cur.i, end: exit}
	defer func() { d.loop = savedLoop }()

	if _, err := d.Run(bytecode.FOR_LOOP, bytecode.JUMP_IF_FALSE); err != nil {
		return err
	}

	next, ok, err := d.cur.nextOpcode()
	if err != nil {
		return err
	}
	if ok && next == bytecode.FOR_LOOP {
		return forLoop(d, out)
	}
	return whileLoop(d, out)
}

// forLoop recognizes the FOR_LOOP form: by the time setupLoop's preamble
// dispatch reaches here, the iterable and a starting index (LOAD_CONST 0)
// are already on the stack, index on top; FOR_LOOP itself yields one
// element per iteration and jumps past the loop once exhausted. The loop
// target is whatever store-class opcode immediately follows.
func forLoop(d *Decompiler, out stmtMap) error {
	if _, err := d.cur.readOpcode(bytecode.FOR_LOOP); err != nil {
		return err
	}
	if _, err := d.cur.readOperand(); err != nil { // redundant with exit, already known
		return err
	}
	if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil { // starting index
		return err
	}
	iterable, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	target, err := buildTarget(d)
	if err != nil {
		return err
	}

	headLine := d.cur.getLine()
	bodyEnd := loopBodyEnd(d)
	body, err := d.runBlock(bodyEnd, bytecode.JUMP_ABSOLUTE)
	if err != nil {
		return err
	}
	if _, err := consumeLoopBack(d); err != nil {
		return err
	}

	header := d.indentText() + "for " + target + " in " + iterable.renderAt(precComma) + ":"
	maxLine := out.attach(headLine, header, body)
	d.cur.setMinLine(maxLine)
	return finishLoopTail(d, out)
}

// whileLoop recognizes the JUMP_IF_FALSE-guarded form: the condition
// expression was already evaluated by setupLoop's own preamble dispatch,
// up to the guard, which this handler consumes directly so the condition
// never gets mistaken for a stand-alone "if".
func whileLoop(d *Decompiler, out stmtMap) error {
	headLine := d.cur.getLine()
	cond, err := evalConditionExpr(d)
	if err != nil {
		return err
	}

	bodyEnd := loopBodyEnd(d)
	body, err := d.runBlock(bodyEnd, bytecode.JUMP_ABSOLUTE)
	if err != nil {
		return err
	}
	if _, err := consumeLoopBack(d); err != nil {
		return err
	}
	// the guard's false branch (loop exit) has its own trailing POP_TOP,
	// mirroring the true branch's one evalConditionExpr already consumed;
	// JUMP_IF_FALSE never pops the tested value on either path.
	if _, err := d.cur.readOpcode(bytecode.POP_TOP); err != nil {
		return err
	}

	header := d.indentText() + "while " + cond.renderAt(precComma) + ":"
	if isTrueConstant(cond) {
		header = d.indentText() + "while 1:"
	}
	maxLine := out.attach(headLine, header, body)
	d.cur.setMinLine(maxLine)
	return finishLoopTail(d, out)
}

func isTrueConstant(e expr) bool {
	p, ok := e.(*plainExpr)
	return ok && p.p == precAtom && p.text == "1"
}

// loopBodyEnd finds the byte offset of the trailing JUMP_ABSOLUTE that
// closes the loop body, by scanning backward from the loop's known exit
// toward the cursor without consuming anything; the body region is
// everything up to (but not including) that jump.
func loopBodyEnd(d *Decompiler) int {
	// the loop back-edge is the last JUMP_ABSOLUTE before the loop's exit
	// at d.loop.end; walk backward from there.
	i := d.loop.end
	for i > d.cur.i {
		prev := i - 3
		if prev >= d.cur.i && bytecode.Op(d.code.Instructions[prev]) == bytecode.JUMP_ABSOLUTE {
			return prev
		}
		i--
	}
	return d.loop.end
}

func consumeLoopBack(d *Decompiler) (bool, error) {
	next, ok, err := d.cur.nextOpcode()
	if err != nil {
		return false, err
	}
	if !ok || next != bytecode.JUMP_ABSOLUTE {
		return false, nil
	}
	if _, err := d.cur.readOpcode(bytecode.JUMP_ABSOLUTE); err != nil {
		return false, err
	}
	if _, err := d.cur.readOperand(); err != nil {
		return false, err
	}
	return true, nil
}

// finishLoopTail consumes the POP_BLOCK that closes every loop and, when
// present, the else-clause body guarded by the JUMP_FORWARD a for/while/else
// construct leaves behind.
func finishLoopTail(d *Decompiler, out stmtMap) error {
	if _, err := d.cur.readOpcode(bytecode.POP_BLOCK); err != nil {
		return err
	}
	next, ok, err := d.cur.nextOpcode()
	if err != nil {
		return err
	}
	if !ok || next != bytecode.JUMP_FORWARD {
		return nil
	}
	if _, err := d.cur.readOpcode(bytecode.JUMP_FORWARD); err != nil {
		return err
	}
	delta, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	elseEnd := d.cur.i + delta
	headLine := d.cur.getLine()
	body, err := d.runBlock(elseEnd)
	if err != nil {
		return err
	}
	maxLine := out.attach(headLine, d.indentText()+"else:", body)
	d.cur.setMinLine(maxLine)
	return nil
}
