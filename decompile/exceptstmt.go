package decompile

import "github.com/mna/unspool/bytecode"

// setupExcept implements SETUP_EXCEPT: a protected try body followed by one
// or more "except Type[, name]:" clauses tested in order via the
// DUP_TOP/COMPARE_OP(exception match)/JUMP_IF_FALSE idiom, ending with
// END_FINALLY if nothing matches (an implicit re-raise, nothing to render).
func setupExcept(d *Decompiler, out stmtMap) error {
	delta, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	handlerStart := d.cur.i + delta
	headLine := d.cur.getLine()

	tryBody, err := d.runBlock(handlerStart, bytecode.POP_BLOCK)
	if err != nil {
		return err
	}
	if _, err := d.cur.readOpcode(bytecode.POP_BLOCK); err != nil {
		return err
	}
	if _, err := d.cur.readOpcode(bytecode.JUMP_FORWARD); err != nil {
		return err
	}
	skip, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	elseLanding := d.cur.i + skip

	clauses, realEnd, err := exceptClauses(d, handlerStart, elseLanding)
	if err != nil {
		return err
	}

	maxLine := out.attach(headLine, d.indentText()+"try:", tryBody)
	for _, cl := range clauses {
		maxLine2 := out.attach(cl.line, d.indentText()+cl.header, cl.body)
		if maxLine2 > maxLine {
			maxLine = maxLine2
		}
	}
	// the position right after END_FINALLY is where control lands when the
	// try body ran to completion without raising; if that's short of where
	// the handler chain's own jumps converge, the gap between them is an
	// "else:" clause.
	if realEnd > elseLanding {
		elseLine := d.cur.getLine()
		elseBody, err := d.runBlock(realEnd)
		if err != nil {
			return err
		}
		maxLine2 := out.attach(elseLine, d.indentText()+"else:", elseBody)
		if maxLine2 > maxLine {
			maxLine = maxLine2
		}
	}
	d.cur.setMinLine(maxLine)
	return nil
}

// setupFinally implements SETUP_FINALLY: a protected body, then the
// finally body, unconditionally run whether or not the try body raised,
// closed by END_FINALLY which re-raises any exception still pending.
func setupFinally(d *Decompiler, out stmtMap) error {
	delta, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	handlerStart := d.cur.i + delta
	headLine := d.cur.getLine()

	tryBody, err := d.runBlock(handlerStart, bytecode.POP_BLOCK)
	if err != nil {
		return err
	}
	if _, err := d.cur.readOpcode(bytecode.POP_BLOCK); err != nil {
		return err
	}
	if _, err := d.cur.readOpcode(bytecode.LOAD_CONST); err != nil {
		return err
	}
	if _, err := d.cur.readOperand(); err != nil {
		return err
	}

	// read before decompiling the body, so a multi-line finally clause
	// doesn't inherit its first statement's own line number.
	finallyLine := d.cur.getLine()
	child := d.sub()
	finallyBody, err := child.Run(bytecode.END_FINALLY)
	if err != nil {
		return err
	}
	if _, err := d.cur.readOpcode(bytecode.END_FINALLY); err != nil {
		return err
	}

	maxLine := out.attach(headLine, d.indentText()+"try:", tryBody)
	maxLine2 := out.attach(finallyLine, d.indentText()+"finally:", finallyBody)
	if maxLine2 > maxLine {
		maxLine = maxLine2
	}
	d.cur.setMinLine(maxLine)
	return nil
}

// exceptClause is one recognized "except ...:" clause.
type exceptClause struct {
	line   int
	header string
	body   stmtMap
}

// exceptClauses walks the handler chain from handlerStart to elseLanding
// (the position right after END_FINALLY, where control lands when the try
// body completed without raising). The runtime delivers the raised
// (traceback, value, type) triple on entry; since no opcode in the stream
// explicitly loads it, this pushes sentinel placeholders at the start of
// each clause so the DUP_TOP/POP_TOP choreography that clause does has
// real symbolic entries to operate on. It also returns realEnd: the position every
// clause's own trailing JUMP_FORWARD converges on, which is the true end
// of the whole try statement and differs from elseLanding exactly when an
// "else:" clause sits between them.
func exceptClauses(d *Decompiler, handlerStart, elseLanding int) ([]exceptClause, int, error) {
	d.cur.pushStop(elseLanding)
	defer d.cur.popStop()

	realEnd := elseLanding
	var clauses []exceptClause
	for {
		next, ok, err := d.cur.nextOpcode()
		if err != nil {
			return nil, 0, err
		}
		if !ok || next == bytecode.END_FINALLY {
			if ok {
				if _, err := d.cur.readOpcode(bytecode.END_FINALLY); err != nil {
					return nil, 0, err
				}
			}
			break
		}

		// only one clause in the chain is ever exercised at runtime, so each
		// one is given its own fresh (traceback, value, type) triple rather
		// than threading a single one through every alternative in turn.
		d.stack.push(atom("<traceback>"))
		d.stack.push(atom("<exc value>"))
		d.stack.push(atom("<exc type>"))

		bare := next != bytecode.DUP_TOP

		var excType expr
		nextClause := -1
		if bare {
			// a bare "except:" always matches and is always the last clause:
			// no compare, no bind, just the type/value/traceback triple
			// discarded in order.
			if _, err := d.cur.readOpcode(bytecode.POP_TOP); err != nil { // exception type
				return nil, 0, err
			}
			if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil {
				return nil, 0, err
			}
		} else {
			if _, err := d.cur.readOpcode(bytecode.DUP_TOP); err != nil {
				return nil, 0, err
			}
			d.stack.dupTop()
			if _, err := d.Run(bytecode.COMPARE_OP); err != nil {
				return nil, 0, err
			}
			excType, err = d.stack.pop(d.code, d.cur.lastOp)
			if err != nil {
				return nil, 0, err
			}
			if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil { // duped type sentinel
				return nil, 0, err
			}
			if _, err := d.cur.readOpcode(bytecode.COMPARE_OP); err != nil {
				return nil, 0, err
			}
			if _, err := d.cur.readOperand(); err != nil { // bytecode.ExceptionMatch
				return nil, 0, err
			}
			d.stack.push(atom("<match?>"))

			if _, err := d.cur.readOpcode(bytecode.JUMP_IF_FALSE); err != nil {
				return nil, 0, err
			}
			nextDelta, err := d.cur.readOperand()
			if err != nil {
				return nil, 0, err
			}
			nextClause = d.cur.i + nextDelta

			if _, err := d.cur.readOpcode(bytecode.POP_TOP); err != nil { // match bool
				return nil, 0, err
			}
			if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil {
				return nil, 0, err
			}
			if _, err := d.cur.readOpcode(bytecode.POP_TOP); err != nil { // exception type
				return nil, 0, err
			}
			if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil {
				return nil, 0, err
			}
		}

		var bindName string
		if !bare {
			bindName, err = exceptBindName(d)
			if err != nil {
				return nil, 0, err
			}
		} else if _, err := d.cur.readOpcode(bytecode.POP_TOP); err != nil { // exception value
			return nil, 0, err
		} else if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil {
			return nil, 0, err
		}
		if _, err := d.cur.readOpcode(bytecode.POP_TOP); err != nil { // traceback
			return nil, 0, err
		}
		if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil {
			return nil, 0, err
		}

		line := d.cur.getLine()
		var body stmtMap
		if bare {
			body, err = d.sub().Run(bytecode.JUMP_FORWARD)
		} else {
			body, err = d.runBlock(nextClause, bytecode.JUMP_FORWARD)
		}
		if err != nil {
			return nil, 0, err
		}
		if _, err := d.cur.readOpcode(bytecode.JUMP_FORWARD); err != nil {
			return nil, 0, err
		}
		jumpSkip, err := d.cur.readOperand()
		if err != nil {
			return nil, 0, err
		}
		realEnd = d.cur.i + jumpSkip

		if !bare {
			// the compiler places this POP_TOP right where a failed match
			// would have landed: it discards the bool JUMP_IF_FALSE never
			// popped along that (unexercised, from this clause's own
			// perspective) path. The next clause gets its own fresh triple
			// above, so nothing needs popping from this one's symbolic stack.
			if _, err := d.cur.readOpcode(bytecode.POP_TOP); err != nil {
				return nil, 0, err
			}
		}

		var header string
		if bare {
			header = "except:"
		} else {
			header = "except " + excType.renderAt(precComma)
			if bindName != "" {
				header += ", " + bindName
			}
			header += ":"
		}
		clauses = append(clauses, exceptClause{line: line, header: header, body: body})
	}
	return clauses, realEnd, nil
}

// exceptBindName consumes the exception value: either an explicit
// "except Type, name:" binding, or a bare POP_TOP discarding it.
func exceptBindName(d *Decompiler) (string, error) {
	next, ok, err := d.cur.nextOpcode()
	if err != nil {
		return "", err
	}
	if ok && next == bytecode.POP_TOP {
		if _, err := d.cur.readOpcode(bytecode.POP_TOP); err != nil {
			return "", err
		}
		if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil {
			return "", err
		}
		return "", nil
	}
	name, err := consumeBindingName(d)
	if err != nil {
		return "", err
	}
	if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil {
		return "", err
	}
	return name, nil
}
