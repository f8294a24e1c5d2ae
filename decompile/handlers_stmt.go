package decompile

import (
	"strings"

	"github.com/mna/unspool/bytecode"
	"github.com/mna/unspool/codeobject"
)

// registerStmtHandlers wires every simple-statement-forming opcode: the
// ones that consume operand-stack values and emit directly into the
// current block's statement map, with no control-flow recognition of their
// own (that lives in handlers registered by registerStructuralHandlers).
func registerStmtHandlers(table map[bytecode.Op]handlerFunc) {
	table[bytecode.BREAK_LOOP] = func(d *Decompiler, out stmtMap) error {
		out.emit(d.cur.getLine(), d.indentText()+"break")
		return nil
	}
	table[bytecode.RAISE_VARARGS] = raiseVarargs
	table[bytecode.RETURN_VALUE] = returnValue
	table[bytecode.POP_TOP] = popTopStatement
	table[bytecode.EXEC_STMT] = execStmt

	table[bytecode.PRINT_ITEM] = printItem(false)
	table[bytecode.PRINT_ITEM_TO] = printItem(true)
	table[bytecode.PRINT_NEWLINE] = printNewline(false)
	table[bytecode.PRINT_NEWLINE_TO] = printNewline(true)

	table[bytecode.DELETE_FAST] = deleteBatch
	table[bytecode.DELETE_GLOBAL] = deleteBatch
	table[bytecode.DELETE_NAME] = deleteBatch
	table[bytecode.DELETE_ATTR] = deleteSingleAttr
	table[bytecode.DELETE_SUBSCR] = deleteSingleSubscr
	for _, op := range []bytecode.Op{bytecode.DELETE_SLICE_0, bytecode.DELETE_SLICE_1, bytecode.DELETE_SLICE_2, bytecode.DELETE_SLICE_3} {
		table[op] = deleteSingleSlice
	}

	table[bytecode.STORE_FAST] = storeSimple
	table[bytecode.STORE_NAME] = storeSimple
	table[bytecode.STORE_GLOBAL] = storeSimple
	table[bytecode.STORE_ATTR] = storeAttr
	table[bytecode.STORE_SUBSCR] = storeSubscr
	for i, op := range []bytecode.Op{bytecode.STORE_SLICE_0, bytecode.STORE_SLICE_1, bytecode.STORE_SLICE_2, bytecode.STORE_SLICE_3} {
		n := i
		table[op] = func(d *Decompiler, out stmtMap) error {
			return storeSlice(d, out, n)
		}
	}

	for name, spec := range augmentedOpTable {
		op, _ := bytecode.Lookup(name)
		s := spec
		table[op] = func(d *Decompiler, out stmtMap) error {
			return inplaceAssign(d, out, s.symbol)
		}
	}
}

// augmentedOpTable maps an INPLACE_* mnemonic to the bare operator symbol
// its "op=" spelling is built from.
var augmentedOpTable = map[string]binOpSpec{
	"INPLACE_ADD":      {"+", precAdd},
	"INPLACE_SUBTRACT": {"-", precAdd},
	"INPLACE_MULTIPLY": {"*", precMult},
	"INPLACE_DIVIDE":   {"/", precMult},
	"INPLACE_MODULO":   {"%", precMult},
	"INPLACE_POWER":    {"**", precPower},
	"INPLACE_LSHIFT":   {"<<", precShift},
	"INPLACE_RSHIFT":   {">>", precShift},
	"INPLACE_AND":      {"&", precBAnd},
	"INPLACE_XOR":      {"^", precBXor},
	"INPLACE_OR":       {"|", precBOr},
}

func raiseVarargs(d *Decompiler, out stmtMap) error {
	n, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	args, err := popN(d, n)
	if err != nil {
		return err
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.renderAt(precComma)
	}
	out.emit(d.cur.getLine(), d.indentText()+"raise "+strings.Join(parts, ", "))
	return nil
}

func returnValue(d *Decompiler, out stmtMap) error {
	v, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	if isNoneConstant(v) {
		if d.cur.atEnd() {
			// the compiler's own implicit final "return None"; elided.
			return nil
		}
		out.emit(d.cur.getLine(), d.indentText()+"return")
		return nil
	}
	out.emit(d.cur.getLine(), d.indentText()+"return "+v.renderAt(precComma))
	return nil
}

func isNoneConstant(e expr) bool {
	p, ok := e.(*plainExpr)
	return ok && p.text == "None" && p.p == precAtom
}

func popTopStatement(d *Decompiler, out stmtMap) error {
	v, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	out.emit(d.cur.getLine(), d.indentText()+v.renderAt(precNone))
	return nil
}

func execStmt(d *Decompiler, out stmtMap) error {
	locals, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	globals, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	code, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	text := d.indentText() + "exec " + code.renderAt(precComma) + " in " + globals.renderAt(precComma)
	if locals != globals {
		text += ", " + locals.renderAt(precComma)
	}
	out.emit(d.cur.getLine(), text)
	return nil
}

// printItem returns the PRINT_ITEM[_TO] handler. It accumulates the printed
// expression text onto the current line, appended with ", " if the line
// already holds a print fragment. Neither this handler nor printNewline
// looks ahead: no trailing comma is ever rendered, and the _TO variants
// pop the stream operand without comparing it to any earlier stream.
func printItem(toStream bool) handlerFunc {
	return func(d *Decompiler, out stmtMap) error {
		if toStream {
			if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil {
				return err
			}
		}
		v, err := d.stack.pop(d.code, d.cur.lastOp)
		if err != nil {
			return err
		}
		line := d.cur.getLine()
		text := v.renderAt(precComma)
		if existing, ok := out[line]; ok && strings.HasPrefix(strings.TrimSpace(existing), "print ") {
			out[line] = existing + ", " + text
		} else {
			out.emit(line, d.indentText()+"print "+text)
		}
		return nil
	}
}

// printNewline returns the PRINT_NEWLINE[_TO] handler: it closes out
// whatever print statement is accumulating on the current line. A bare
// PRINT_NEWLINE with nothing accumulated yet prints an empty line.
func printNewline(toStream bool) handlerFunc {
	return func(d *Decompiler, out stmtMap) error {
		if toStream {
			if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil {
				return err
			}
		}
		line := d.cur.getLine()
		if _, ok := out[line]; !ok {
			out.emit(line, d.indentText()+"print")
		}
		return nil
	}
}

// deleteBatch handles DELETE_FAST/GLOBAL/NAME: it consumes the current
// delete target, then greedily consumes any immediately following
// DELETE_FAST/GLOBAL/NAME opcodes that share its source line, composing
// them into a single "del a, b, c" statement.
func deleteBatch(d *Decompiler, out stmtMap) error {
	line := d.cur.getLine()
	targets := []string{}
	op := bytecode.Op(d.code.Instructions[d.cur.lastOp])
	for {
		name, err := deleteTargetName(d, op)
		if err != nil {
			return err
		}
		targets = append(targets, name)
		next, ok, err := d.cur.nextOpcode()
		if err != nil {
			return err
		}
		if !ok || !isDeleteNameOp(next) || codeobject.LineOf(d.code, d.cur.i) != line {
			break
		}
		op, err = d.cur.readOpcode(bytecode.DELETE_FAST, bytecode.DELETE_GLOBAL, bytecode.DELETE_NAME)
		if err != nil {
			return err
		}
	}
	out.emit(line, d.indentText()+"del "+strings.Join(targets, ", "))
	return nil
}

func isDeleteNameOp(op bytecode.Op) bool {
	return op == bytecode.DELETE_FAST || op == bytecode.DELETE_GLOBAL || op == bytecode.DELETE_NAME
}

func deleteTargetName(d *Decompiler, op bytecode.Op) (string, error) {
	k, err := d.cur.readOperand()
	if err != nil {
		return "", err
	}
	if op == bytecode.DELETE_FAST {
		return d.cur.getLocal(k)
	}
	return d.cur.getName(k)
}

func deleteSingleAttr(d *Decompiler, out stmtMap) error {
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
	out.emit(d.cur.getLine(), d.indentText()+"del "+base.renderAt(precAtom)+"."+name)
	return nil
}

func deleteSingleSubscr(d *Decompiler, out stmtMap) error {
	index, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	base, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	out.emit(d.cur.getLine(), d.indentText()+"del "+base.renderAt(precAtom)+"["+index.renderAt(precComma)+"]")
	return nil
}

func deleteSingleSlice(d *Decompiler, out stmtMap) error {
	op := bytecode.Op(d.code.Instructions[d.cur.lastOp])
	text, err := sliceTargetText(d, op, bytecode.DELETE_SLICE_0)
	if err != nil {
		return err
	}
	out.emit(d.cur.getLine(), d.indentText()+"del "+text)
	return nil
}

func storeSimple(d *Decompiler, out stmtMap) error {
	value, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	op := bytecode.Op(d.code.Instructions[d.cur.lastOp])
	k, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	var name string
	if op == bytecode.STORE_FAST {
		name, err = d.cur.getLocal(k)
	} else {
		name, err = d.cur.getName(k)
	}
	if err != nil {
		return err
	}
	out.emit(d.cur.getLine(), d.indentText()+name+" = "+value.renderAt(precComma))
	return nil
}

func storeAttr(d *Decompiler, out stmtMap) error {
	value, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
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
	out.emit(d.cur.getLine(), d.indentText()+base.renderAt(precAtom)+"."+name+" = "+value.renderAt(precComma))
	return nil
}

// storeSubscr implements both ordinary subscript assignment and, when the
// base is a still-open map display, the incremental map-literal builder:
// "BUILD_MAP 0 followed by N (LOAD_CONST k, LOAD_CONST v, STORE_SUBSCR)"
// never re-pushes the map between entries, so recognizing it only requires
// peeking rather than popping the base.
func storeSubscr(d *Decompiler, out stmtMap) error {
	value, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	key, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	if m, ok := d.stack.peek().(*mapExpr); ok {
		m.set(key, value)
		return nil
	}
	base, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	out.emit(d.cur.getLine(), d.indentText()+base.renderAt(precAtom)+"["+key.renderAt(precComma)+"] = "+value.renderAt(precComma))
	return nil
}

func storeSlice(d *Decompiler, out stmtMap, n int) error {
	value, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	op := [4]bytecode.Op{bytecode.STORE_SLICE_0, bytecode.STORE_SLICE_1, bytecode.STORE_SLICE_2, bytecode.STORE_SLICE_3}[n]
	text, err := sliceTargetText(d, op, bytecode.STORE_SLICE_0)
	if err != nil {
		return err
	}
	out.emit(d.cur.getLine(), d.indentText()+text+" = "+value.renderAt(precComma))
	return nil
}

// sliceTargetText pops whichever of lower/upper bound expressions the
// slice variant (0..3, relative to base) requires, then the base, and
// renders "base[lower:upper]" with absent bounds left blank.
func sliceTargetText(d *Decompiler, op, base0 bytecode.Op) (string, error) {
	variant := int(op - base0)
	var upper, lower expr
	var err error
	if variant == 2 || variant == 3 {
		upper, err = d.stack.pop(d.code, d.cur.lastOp)
		if err != nil {
			return "", err
		}
	}
	if variant == 1 || variant == 3 {
		lower, err = d.stack.pop(d.code, d.cur.lastOp)
		if err != nil {
			return "", err
		}
	}
	base, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return "", err
	}
	lowerText, upperText := "", ""
	if lower != nil {
		lowerText = lower.renderAt(precComma)
	}
	if upper != nil {
		upperText = upper.renderAt(precComma)
	}
	return base.renderAt(precAtom) + "[" + lowerText + ":" + upperText + "]", nil
}

// inplaceAssign implements the augmented-assignment family: the lhs popped
// off the stack is already rendered in exactly the target's textual form
// (LOAD_FAST/LOAD_ATTR/BINARY_SUBSCR all produce target-shaped text), so
// the trailing ROT_*/STORE_* the compiler inserts only needs consuming,
// never re-rendering. An attribute or subscript target additionally left
// its duplicated base (and, for a subscript, index) expression sitting on
// the stack beneath lhs/rhs — DUP_TOP/DUP_TOPX pushed it so the read side
// had something to call LOAD_ATTR/BINARY_SUBSCR against — and ROT_TWO/
// ROT_THREE only reorders it into position for STORE_ATTR/STORE_SUBSCR to
// consume; it never pops it, so this does instead, once the store itself
// is read.
func inplaceAssign(d *Decompiler, out stmtMap, symbol string) error {
	rhs, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	lhs, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	line := d.cur.getLine()
	var rot bytecode.Op
	for {
		op, ok, err := d.cur.nextOpcode()
		if err != nil {
			return err
		}
		if !ok {
			return &InputMalformedError{Code: d.code, Offset: d.cur.i, Reason: "augmented assignment missing trailing store"}
		}
		if op == bytecode.ROT_TWO || op == bytecode.ROT_THREE {
			rot = op
			if _, err := d.cur.readOpcode(op); err != nil {
				return err
			}
			continue
		}
		storeOp, err := d.cur.readOpcode(bytecode.STORE_FAST, bytecode.STORE_NAME, bytecode.STORE_GLOBAL,
			bytecode.STORE_ATTR, bytecode.STORE_SUBSCR,
			bytecode.STORE_SLICE_0, bytecode.STORE_SLICE_1, bytecode.STORE_SLICE_2, bytecode.STORE_SLICE_3)
		if err != nil {
			return err
		}
		if bytecode.HasOperand(storeOp) {
			if _, err := d.cur.readOperand(); err != nil {
				return err
			}
		}
		break
	}
	switch rot {
	case bytecode.ROT_TWO:
		if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil { // duplicated base
			return err
		}
	case bytecode.ROT_THREE:
		if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil { // duplicated index
			return err
		}
		if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil { // duplicated base
			return err
		}
	}
	out.emit(line, d.indentText()+lhs.renderAt(precAtom)+" "+symbol+"= "+rhs.renderAt(precComma))
	return nil
}
