package decompile

import "github.com/mna/unspool/bytecode"

// compareChain implements the ROT_THREE idiom: the compiler lowers
// "a < b < c" to a DUP_TOP/ROT_THREE/COMPARE_OP/JUMP_IF_FALSE/POP_TOP
// sequence per link except the last, which drops straight from its
// COMPARE_OP into a JUMP_FORWARD that skips the shared ROT_TWO/POP_TOP
// cleanup every earlier link's JUMP_IF_FALSE targets on failure. ROT_THREE
// only ever appears as part of this idiom — it is never a bare stack
// rotation in this language's compiled output — so its dispatch table entry
// is this recognizer, not a generic rotation.
func compareChain(d *Decompiler, out stmtMap) error {
	d.stack.rotThree()

	right, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	left, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}

	symbol, err := readCompareOp(d)
	if err != nil {
		return err
	}
	if err := consumeJumpIfFalse(d); err != nil {
		return err
	}
	text := left.renderAt(precCmp+1) + " " + symbol + " " + right.renderAt(precCmp+1)

	for {
		// the prior link's fall-through POP_TOP (discarding its own
		// COMPARE_OP result) plus whatever loads the next comparand; the
		// running left-hand value is already folded into text, so popping
		// the stale DUP_TOP'd operand here is harmless.
		if _, err := d.Run(bytecode.COMPARE_OP); err != nil {
			return err
		}
		nextRight, err := d.stack.pop(d.code, d.cur.lastOp)
		if err != nil {
			return err
		}
		symbol, err := readCompareOp(d)
		if err != nil {
			return err
		}
		text += " " + symbol + " " + nextRight.renderAt(precCmp+1)

		next, ok, err := d.cur.nextOpcode()
		if err != nil {
			return err
		}
		if ok && next == bytecode.JUMP_IF_FALSE {
			if err := consumeJumpIfFalse(d); err != nil {
				return err
			}
			continue
		}

		// the last link: its COMPARE_OP result is the chain's own result,
		// so instead of another JUMP_IF_FALSE it jumps forward past the
		// shared failure cleanup (ROT_TWO/POP_TOP) that immediately
		// follows in the instruction stream.
		if _, err := d.cur.readOpcode(bytecode.JUMP_FORWARD); err != nil {
			return err
		}
		leap, err := d.cur.readOperand()
		if err != nil {
			return err
		}
		if leap != 2 {
			return newStructuralMismatch(d.code, "compareChain", "final JUMP_FORWARD does not skip exactly the ROT_TWO/POP_TOP cleanup")
		}
		if _, err := d.cur.readOpcode(bytecode.ROT_TWO); err != nil {
			return err
		}
		if _, err := d.cur.readOpcode(bytecode.POP_TOP); err != nil {
			return err
		}
		// this ROT_TWO/POP_TOP pair is the shared cleanup every earlier
		// link's failing JUMP_IF_FALSE targets; along the all-succeeded
		// path this recognizer reads, it is dead code that the JUMP_FORWARD
		// above always skips at runtime, so the operand stack (already
		// left holding nothing but what the last comparison consumed) is
		// not touched for it.
		break
	}

	d.stack.push(chain(text))
	return nil
}

func readCompareOp(d *Decompiler) (string, error) {
	if _, err := d.cur.readOpcode(bytecode.COMPARE_OP); err != nil {
		return "", err
	}
	arg, err := d.cur.readOperand()
	if err != nil {
		return "", err
	}
	if arg < 0 || arg >= len(bytecode.CompareOps) {
		return "", &InputMalformedError{Code: d.code, Offset: d.cur.lastOp, Reason: "comparison operand out of range"}
	}
	return bytecode.CompareOps[arg], nil
}

func consumeJumpIfFalse(d *Decompiler) error {
	if _, err := d.cur.readOpcode(bytecode.JUMP_IF_FALSE); err != nil {
		return err
	}
	_, err := d.cur.readOperand()
	return err
}
