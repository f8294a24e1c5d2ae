package decompile

import "github.com/mna/unspool/bytecode"

// condJump returns the JUMP_IF_FALSE (isOr=false) or JUMP_IF_TRUE (isOr=true)
// handler. Both opcodes leave their tested value on the stack and guard a
// region that starts with POP_TOP on the not-taken path; what that region
// turns out to contain decides which idiom this is:
//   - a short-circuit and/or: the region is a single further expression,
//     leaving the operand stack exactly one item deeper than before it ran
//   - an if/else statement (JUMP_IF_FALSE only): the region is one or
//     more statements, leaving the stack at the same depth it had going in;
//     no "elif" is rendered, so an elif branch comes out as an if statement
//     nested inside the else clause
//   - assert test[, msg] (JUMP_IF_FALSE only): the compiler wraps the whole
//     assert in a `__debug__`-guarded JUMP_IF_FALSE, and the region contains
//     a nested JUMP_IF_TRUE whose own region raises AssertionError directly
//     instead of evaluating an "or" right-hand side; the net effect is two
//     items left on the stack instead of one
func condJump(isOr bool) handlerFunc {
	return func(d *Decompiler, out stmtMap) error {
		delta, err := d.cur.readOperand()
		if err != nil {
			return err
		}
		target := d.cur.i + delta
		tested, err := d.stack.pop(d.code, d.cur.lastOp)
		if err != nil {
			return err
		}
		headLine := d.cur.getLine()
		if _, err := d.cur.readOpcode(bytecode.POP_TOP); err != nil {
			return err
		}

		if isOr {
			// Bounded sub-scan stopping either exactly at target (a plain "or"
			// right-hand side) or early at RAISE_VARARGS (the compiler's lowered
			// `assert test[, msg]`, which wraps its raise in this same idiom).
			if _, err := d.runBlock(target, bytecode.RAISE_VARARGS); err != nil {
				return err
			}
			if d.cur.i == target {
				right, err := d.stack.pop(d.code, d.cur.lastOp)
				if err != nil {
					return err
				}
				text := tested.renderAt(precOr+1) + " or " + right.renderAt(precOr)
				d.stack.push(newExpr(text, precOr))
				return nil
			}
			return finishAssertRaise(d, tested)
		}

		depthBefore := d.stack.len()
		body, err := d.runBlock(target, bytecode.JUMP_FORWARD)
		if err != nil {
			return err
		}
		depthAfter := d.stack.len()

		switch depthAfter - depthBefore {
		case 1:
			right, err := d.stack.pop(d.code, d.cur.lastOp)
			if err != nil {
				return err
			}
			text := tested.renderAt(precAnd+1) + " and " + right.renderAt(precAnd)
			d.stack.push(newExpr(text, precAnd))
			return nil

		case 0:
			elseLine, elseBody, hasElse, err := captureElseClause(d)
			if err != nil {
				return err
			}
			header := d.indentText() + "if " + tested.renderAt(precComma) + ":"
			maxLine := out.attach(headLine, header, body)
			if hasElse {
				maxLine2 := out.attach(elseLine, d.indentText()+"else:", elseBody)
				if maxLine2 > maxLine {
					maxLine = maxLine2
				}
			}
			d.cur.setMinLine(maxLine)
			return nil

		default:
			// The body left two expressions behind: the compiler's lowered
			// `__debug__`-guarded assert, whose inner JUMP_IF_TRUE pushed the
			// message (or a nil placeholder when absent) and the test.
			testExpr, err := d.stack.pop(d.code, d.cur.lastOp)
			if err != nil {
				return err
			}
			valueExpr, err := d.stack.pop(d.code, d.cur.lastOp)
			if err != nil {
				return err
			}
			stmt := d.indentText() + "assert " + testExpr.renderAt(precArg)
			if valueExpr != nil {
				stmt += ", " + valueExpr.renderAt(precArg)
			}
			out.emit(headLine, stmt)
			_, err = d.cur.readOpcode(bytecode.POP_TOP)
			return err
		}
	}
}

// finishAssertRaise runs once a JUMP_IF_TRUE's bounded sub-scan stops early
// at RAISE_VARARGS rather than reaching its own target: the lowered
// `assert test[, msg]` idiom raises AssertionError directly instead of
// evaluating a right-hand `or` operand. It consumes the RAISE_VARARGS
// instruction itself, discards the AssertionError global the sub-scan
// pushed, and leaves exactly two items on the stack — an optional message
// (nil when RAISE_VARARGS took a single argument) and the test expression —
// for the enclosing JUMP_IF_FALSE to collect and render.
func finishAssertRaise(d *Decompiler, tested expr) error {
	if _, err := d.cur.readOpcode(bytecode.RAISE_VARARGS); err != nil {
		return err
	}
	n, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	var value expr
	if n == 2 {
		value, err = d.stack.pop(d.code, d.cur.lastOp)
		if err != nil {
			return err
		}
	}
	if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil { // discard AssertionError
		return err
	}
	d.stack.push(value)
	d.stack.push(tested)
	return nil
}

// captureElseClause runs right after an if-body's bounded sub-scan has
// stopped either at the guard's false-branch target (no else clause) or at
// a trailing JUMP_FORWARD (an else clause to decompile). Either way it
// consumes the false branch's own POP_TOP, which discards the condition
// value left behind by JUMP_IF_FALSE/JUMP_IF_TRUE. The else header's line is
// read right after that POP_TOP and before the body is decompiled, so a
// multi-line else doesn't inherit its first statement's line number.
func captureElseClause(d *Decompiler) (int, stmtMap, bool, error) {
	next, ok, err := d.cur.nextOpcode()
	if err != nil {
		return 0, nil, false, err
	}
	if ok && next == bytecode.JUMP_FORWARD {
		if _, err := d.cur.readOpcode(bytecode.JUMP_FORWARD); err != nil {
			return 0, nil, false, err
		}
		skip, err := d.cur.readOperand()
		if err != nil {
			return 0, nil, false, err
		}
		elseEnd := d.cur.i + skip
		if _, err := d.cur.readOpcode(bytecode.POP_TOP); err != nil {
			return 0, nil, false, err
		}
		elseLine := d.cur.getLine()
		elseBody, err := d.runBlock(elseEnd)
		if err != nil {
			return 0, nil, false, err
		}
		return elseLine, elseBody, true, nil
	}
	if _, err := d.cur.readOpcode(bytecode.POP_TOP); err != nil {
		return 0, nil, false, err
	}
	return 0, nil, false, nil
}

// evalConditionExpr collects the boolean guard of a while-loop: by the
// time this runs, setupLoop's own preamble dispatch has already executed
// the guard expression's opcodes and left the result on top of the stack,
// with the cursor sitting right at the loop's JUMP_IF_FALSE, so this just
// pops that result and consumes the guard opcode and its enter-the-body
// POP_TOP. Unlike a plain if-statement's guard, this one is never routed
// through condJump's generic dispatch, since the tentative body decompile
// condJump relies on would walk straight into the loop's own back-edge. A
// condition built from a short-circuit and/or chain (e.g. "while a and
// b:") is consequently read as a single flat test; nested and/or inside a
// while guard is rare enough in practice that this narrower form is the
// one implemented here.
func evalConditionExpr(d *Decompiler) (expr, error) {
	cond, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return nil, err
	}
	if _, err := d.cur.readOpcode(bytecode.JUMP_IF_FALSE); err != nil {
		return nil, err
	}
	if _, err := d.cur.readOperand(); err != nil {
		return nil, err
	}
	if _, err := d.cur.readOpcode(bytecode.POP_TOP); err != nil {
		return nil, err
	}
	return cond, nil
}
