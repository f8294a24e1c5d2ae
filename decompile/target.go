package decompile

import (
	"strings"

	"github.com/mna/unspool/bytecode"
)

// buildTarget produces the textual form of an assignment target, given the
// cursor positioned just before a store-class opcode (possibly preceded by
// a subscript/slice base already sitting on the stack). UNPACK_SEQUENCE and
// UNPACK_TUPLE recurse n times, one call per destructured element,
// enabling arbitrarily nested tuple targets.
func buildTarget(d *Decompiler) (string, error) {
	op, err := d.cur.readOpcode(
		bytecode.STORE_FAST, bytecode.STORE_NAME, bytecode.STORE_GLOBAL,
		bytecode.STORE_ATTR, bytecode.STORE_SUBSCR,
		bytecode.STORE_SLICE_0, bytecode.STORE_SLICE_1, bytecode.STORE_SLICE_2, bytecode.STORE_SLICE_3,
		bytecode.UNPACK_SEQUENCE, bytecode.UNPACK_TUPLE,
	)
	if err != nil {
		return "", err
	}
	return targetTextForOp(d, op)
}

func targetTextForOp(d *Decompiler, op bytecode.Op) (string, error) {
	switch op {
	case bytecode.STORE_FAST:
		k, err := d.cur.readOperand()
		if err != nil {
			return "", err
		}
		return d.cur.getLocal(k)
	case bytecode.STORE_NAME, bytecode.STORE_GLOBAL:
		k, err := d.cur.readOperand()
		if err != nil {
			return "", err
		}
		return d.cur.getName(k)
	case bytecode.STORE_ATTR:
		k, err := d.cur.readOperand()
		if err != nil {
			return "", err
		}
		name, err := d.cur.getName(k)
		if err != nil {
			return "", err
		}
		base, err := d.stack.pop(d.code, d.cur.lastOp)
		if err != nil {
			return "", err
		}
		return base.renderAt(precAtom) + "." + name, nil
	case bytecode.STORE_SUBSCR:
		key, err := d.stack.pop(d.code, d.cur.lastOp)
		if err != nil {
			return "", err
		}
		base, err := d.stack.pop(d.code, d.cur.lastOp)
		if err != nil {
			return "", err
		}
		return base.renderAt(precAtom) + "[" + key.renderAt(precComma) + "]", nil
	case bytecode.STORE_SLICE_0, bytecode.STORE_SLICE_1, bytecode.STORE_SLICE_2, bytecode.STORE_SLICE_3:
		return sliceTargetText(d, op, bytecode.STORE_SLICE_0)
	case bytecode.UNPACK_SEQUENCE, bytecode.UNPACK_TUPLE:
		n, err := d.cur.readOperand()
		if err != nil {
			return "", err
		}
		parts := make([]string, n)
		for i := 0; i < n; i++ {
			parts[i], err = buildTarget(d)
			if err != nil {
				return "", err
			}
		}
		if n == 1 {
			return "(" + parts[0] + ",)", nil
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", newStructuralMismatch(d.code, "buildTarget", "opcode "+op.String()+" is not a valid assignment target")
	}
}

// registerTargetHandlers wires UNPACK_SEQUENCE/UNPACK_TUPLE as top-level
// statement handlers: "a, b = pair" compiles to an UNPACK opcode with no
// enclosing build_target caller, so it needs its own driver dispatch entry
// in addition to being reachable recursively from buildTarget itself.
func registerTargetHandlers(table map[bytecode.Op]handlerFunc) {
	unpackStmt := func(d *Decompiler, out stmtMap) error {
		// the targets are built first, since a composite target (b.c, d[e])
		// pops its own base/key expressions off the very same stack, and
		// those sit above the right-hand-side value that UNPACK_SEQUENCE
		// itself never touches; only once every target has claimed its own
		// stack entries is the rhs value left on top to pop.
		op := bytecode.Op(d.code.Instructions[d.cur.lastOp])
		text, err := targetTextForOp(d, op)
		if err != nil {
			return err
		}
		value, err := d.stack.pop(d.code, d.cur.lastOp)
		if err != nil {
			return err
		}
		out.emit(d.cur.getLine(), d.indentText()+text+" = "+value.renderAt(precComma))
		return nil
	}
	table[bytecode.UNPACK_SEQUENCE] = unpackStmt
	table[bytecode.UNPACK_TUPLE] = unpackStmt
}
