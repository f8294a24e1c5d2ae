package decompile

import (
	"strings"

	"github.com/mna/unspool/bytecode"
	"github.com/mna/unspool/codeobject"
)

// registerExprHandlers wires every expression-forming opcode into table:
// each one only ever pushes (or pops-then-pushes) the operand stack. It
// never emits a statement; out is accepted purely so the handlerFunc
// signature stays uniform across both handler families.
func registerExprHandlers(table map[bytecode.Op]handlerFunc) {
	table[bytecode.UNARY_POSITIVE] = unaryHandler("+")
	table[bytecode.UNARY_NEGATIVE] = unaryHandler("-")
	table[bytecode.UNARY_INVERT] = unaryHandler("~")
	table[bytecode.UNARY_NOT] = unaryNot
	table[bytecode.UNARY_CONVERT] = unaryConvert

	for name, spec := range binaryOpTable {
		op, _ := bytecode.Lookup(name)
		s := spec
		table[op] = func(d *Decompiler, out stmtMap) error {
			return d.stack.binary(d.code, d.cur.lastOp, s.symbol, s.prec)
		}
	}
	table[bytecode.BINARY_POWER] = func(d *Decompiler, out stmtMap) error {
		return d.stack.power(d.code, d.cur.lastOp)
	}
	table[bytecode.BINARY_SUBSCR] = binarySubscr

	// a lone (non-chained) comparison never goes through the DUP_TOP/
	// ROT_THREE idiom compareChain recognizes: the compiler only reaches for
	// that dance once a second comparison shares the middle operand.
	table[bytecode.COMPARE_OP] = compareOp

	// augmented assignment to an attribute or subscript target duplicates
	// the base (and index) expression so the trailing STORE_* can still
	// render it after the INPLACE_* op has consumed the read side.
	table[bytecode.DUP_TOP] = func(d *Decompiler, out stmtMap) error {
		d.stack.dupTop()
		return nil
	}
	table[bytecode.DUP_TOPX] = func(d *Decompiler, out stmtMap) error {
		n, err := d.cur.readOperand()
		if err != nil {
			return err
		}
		d.stack.dupTopX(n)
		return nil
	}

	table[bytecode.LOAD_CONST] = loadConst
	table[bytecode.LOAD_FAST] = loadFast
	table[bytecode.LOAD_NAME_OP] = loadGlobalLike
	table[bytecode.LOAD_GLOBAL] = loadGlobalLike
	table[bytecode.LOAD_ATTR] = loadAttr
	table[bytecode.LOAD_LOCALS] = func(d *Decompiler, out stmtMap) error {
		// a class body's compiler-inserted trailer is LOAD_LOCALS; RETURN_VALUE,
		// so pushing the None constant here (rather than rendering locals()
		// directly) lets returnValue's implicit-return elision swallow it the
		// same way it swallows a module's trailing "return None".
		d.stack.push(constant(nil))
		return nil
	}

	table[bytecode.BUILD_TUPLE] = buildSequence(false)
	table[bytecode.BUILD_LIST] = buildSequence(true)
	table[bytecode.BUILD_MAP] = func(d *Decompiler, out stmtMap) error {
		// operand is only a size hint; the map display is assembled
		// incrementally by subsequent STORE_SUBSCR calls.
		d.stack.push(newMapExpr())
		return nil
	}
	table[bytecode.BUILD_SLICE] = buildSlice
	for _, op := range []bytecode.Op{bytecode.SLICE_0, bytecode.SLICE_1, bytecode.SLICE_2, bytecode.SLICE_3} {
		op := op
		table[op] = func(d *Decompiler, out stmtMap) error {
			text, err := sliceTargetText(d, op, bytecode.SLICE_0)
			if err != nil {
				return err
			}
			d.stack.push(atom(text))
			return nil
		}
	}

	table[bytecode.CALL_FUNCTION] = callFunction(false, false)
	table[bytecode.CALL_FUNCTION_VAR] = callFunction(true, false)
	table[bytecode.CALL_FUNCTION_KW] = callFunction(false, true)
	table[bytecode.CALL_FUNCTION_VAR_KW] = callFunction(true, true)
}

// callFunction returns the handler for one of the four CALL_FUNCTION*
// variants. The operand packs positional count in its low byte and
// keyword-pair count in its high byte; hasVar/hasKw additionally pop a
// trailing *args tuple and/or **kwargs dict, in that stack order.
func callFunction(hasVar, hasKw bool) handlerFunc {
	return func(d *Decompiler, out stmtMap) error {
		arg, err := d.cur.readOperand()
		if err != nil {
			return err
		}
		na := arg & 0xFF
		nkw := (arg >> 8) & 0xFF

		var kwDict, varArgs expr
		if hasKw {
			if kwDict, err = d.stack.pop(d.code, d.cur.lastOp); err != nil {
				return err
			}
		}
		if hasVar {
			if varArgs, err = d.stack.pop(d.code, d.cur.lastOp); err != nil {
				return err
			}
		}

		kwParts := make([]string, nkw)
		for i := nkw - 1; i >= 0; i-- {
			value, err := d.stack.pop(d.code, d.cur.lastOp)
			if err != nil {
				return err
			}
			key, err := d.stack.pop(d.code, d.cur.lastOp)
			if err != nil {
				return err
			}
			kwParts[i] = bareKeyText(key) + "=" + value.renderAt(precComma)
		}

		posParts := make([]string, na)
		for i := na - 1; i >= 0; i-- {
			v, err := d.stack.pop(d.code, d.cur.lastOp)
			if err != nil {
				return err
			}
			posParts[i] = v.renderAt(precComma)
		}

		fn, err := d.stack.pop(d.code, d.cur.lastOp)
		if err != nil {
			return err
		}

		args := append([]string{}, posParts...)
		args = append(args, kwParts...)
		if hasVar {
			args = append(args, "*"+varArgs.renderAt(precComma))
		}
		if hasKw {
			args = append(args, "**"+kwDict.renderAt(precComma))
		}
		d.stack.push(atom(fn.renderAt(precAtom) + "(" + strings.Join(args, ", ") + ")"))
		return nil
	}
}

// bareKeyText strips the quoting constant() puts around a string keyword
// name, since "name=value" call syntax never shows the quotes.
func bareKeyText(key expr) string {
	text := key.renderAt(precAtom)
	if len(text) >= 2 && text[0] == '\'' && text[len(text)-1] == '\'' {
		return text[1 : len(text)-1]
	}
	return text
}

func unaryHandler(symbol string) handlerFunc {
	return func(d *Decompiler, out stmtMap) error {
		operand, err := d.stack.pop(d.code, d.cur.lastOp)
		if err != nil {
			return err
		}
		d.stack.push(newExpr(symbol+operand.renderAt(precAtom), precUnary))
		return nil
	}
}

func unaryNot(d *Decompiler, out stmtMap) error {
	operand, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	d.stack.push(newExpr("not "+operand.renderAt(precNot), precNot))
	return nil
}

func unaryConvert(d *Decompiler, out stmtMap) error {
	operand, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	d.stack.push(atom("`" + operand.renderAt(precComma) + "`"))
	return nil
}

func compareOp(d *Decompiler, out stmtMap) error {
	arg, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	if arg < 0 || arg >= len(bytecode.CompareOps) {
		return &InputMalformedError{Code: d.code, Offset: d.cur.lastOp, Reason: "comparison operand out of range"}
	}
	right, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	left, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	text := left.renderAt(precCmp+1) + " " + bytecode.CompareOps[arg] + " " + right.renderAt(precCmp+1)
	d.stack.push(newExpr(text, precCmp))
	return nil
}

func binarySubscr(d *Decompiler, out stmtMap) error {
	index, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	base, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	d.stack.push(atom(base.renderAt(precAtom) + "[" + index.renderAt(precComma) + "]"))
	return nil
}

func loadConst(d *Decompiler, out stmtMap) error {
	k, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	v, err := d.cur.getConstant(k)
	if err != nil {
		return err
	}
	if code, ok := v.(*codeobject.Code); ok {
		d.stack.push(&codeExpr{code: code})
		return nil
	}
	d.stack.push(constant(v))
	return nil
}

func loadFast(d *Decompiler, out stmtMap) error {
	k, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	name, err := d.cur.getLocal(k)
	if err != nil {
		return err
	}
	d.stack.push(local(name))
	return nil
}

func loadGlobalLike(d *Decompiler, out stmtMap) error {
	k, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	name, err := d.cur.getName(k)
	if err != nil {
		return err
	}
	d.stack.push(global(name))
	return nil
}

func loadAttr(d *Decompiler, out stmtMap) error {
	k, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	name, err := d.cur.getName(k)
	if err != nil {
		return err
	}
	base, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	d.stack.push(atom(base.renderAt(precAtom) + "." + name))
	return nil
}

// buildSequence returns a handler for BUILD_LIST/BUILD_TUPLE: both pop n
// items (n from the operand) and push the composite display, differing
// only in bracket style and the arity-1/2+ rendering rule tuples use.
func buildSequence(isList bool) handlerFunc {
	return func(d *Decompiler, out stmtMap) error {
		n, err := d.cur.readOperand()
		if err != nil {
			return err
		}
		items, err := popN(d, n)
		if err != nil {
			return err
		}
		if isList {
			parts := make([]string, len(items))
			for i, v := range items {
				parts[i] = v.renderAt(precComma)
			}
			d.stack.push(atom("[" + strings.Join(parts, ", ") + "]"))
			return nil
		}
		d.stack.push(tupleLiteral(items))
		return nil
	}
}

func buildSlice(d *Decompiler, out stmtMap) error {
	n, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	items, err := popN(d, n)
	if err != nil {
		return err
	}
	for len(items) < 3 {
		items = append([]expr{atom("")}, items...)
	}
	parts := make([]string, len(items))
	for i, v := range items {
		if _, isConst := v.(*plainExpr); isConst && v.renderAt(precComma) == "None" {
			parts[i] = ""
			continue
		}
		parts[i] = v.renderAt(precComma)
	}
	d.stack.push(atom(strings.Join(parts, ":")))
	return nil
}

// popN pops n items off the stack and returns them in original push order
// (bottom of the popped group first).
func popN(d *Decompiler, n int) ([]expr, error) {
	items := make([]expr, n)
	for i := n - 1; i >= 0; i-- {
		v, err := d.stack.pop(d.code, d.cur.lastOp)
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return items, nil
}
