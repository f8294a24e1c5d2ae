package decompile

import (
	"strings"

	"github.com/mna/unspool/bytecode"
	"github.com/mna/unspool/codeobject"
)

// makeFunction implements MAKE_FUNCTION: it pops a nested code
// object constant and its default-value expressions, then decides between
// three shapes by the nested code's name and what follows in the stream.
func makeFunction(d *Decompiler, out stmtMap) error {
	ndefaults, err := d.cur.readOperand()
	if err != nil {
		return err
	}
	// the code object is pushed last, right before MAKE_FUNCTION, with the
	// default-value expressions already sitting below it on the stack.
	constIdx, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	nestedCode, ok := lastCodeConstant(d, constIdx)
	if !ok {
		return newStructuralMismatch(d.code, "makeFunction", "MAKE_FUNCTION operand is not a nested code object")
	}
	defaults, err := popN(d, ndefaults)
	if err != nil {
		return err
	}

	if nestedCode.Name == "<lambda>" {
		returnExpr, err := decompileExprBody(d, nestedCode)
		if err != nil {
			return err
		}
		params := buildParams(nestedCode, defaults)
		text := "lambda"
		if params != "" {
			text += " " + params
		}
		text += ": " + returnExpr.renderAt(precComma)
		d.stack.push(newExpr(text, precLambda))
		return nil
	}

	next, ok, err := d.cur.nextOpcode()
	if err != nil {
		return err
	}
	if ok && next == bytecode.CALL_FUNCTION {
		if _, err := d.cur.readOpcode(bytecode.CALL_FUNCTION); err != nil {
			return err
		}
		if _, err := d.cur.readOperand(); err != nil { // always 0 for a class body call
			return err
		}
		if _, err := d.cur.readOpcode(bytecode.BUILD_CLASS); err != nil {
			return err
		}
		return finishClassDef(d, out, nestedCode)
	}

	return finishFuncDef(d, out, nestedCode, defaults)
}

// lastCodeConstant resolves the *codeobject.Code that the just-popped
// constant-pool entry refers to. LOAD_CONST does not render a nested code
// object through constant(); it pushes the raw *codeobject.Code wrapped in
// a codeExpr marker, which is the stack entry MAKE_FUNCTION pops here.
func lastCodeConstant(d *Decompiler, e expr) (*codeobject.Code, bool) {
	m, ok := e.(*codeExpr)
	if !ok {
		return nil, false
	}
	return m.code, true
}

// codeExpr is a private stack-entry kind used only to carry a nested
// *codeobject.Code from LOAD_CONST to MAKE_FUNCTION; it never renders.
type codeExpr struct {
	code *codeobject.Code
}

func (c *codeExpr) renderAt(int) string { return "<code " + c.code.Name + ">" }
func (c *codeExpr) prec() int           { return precAtom }

// decompileExprBody sub-decompiles a lambda body: a nested code object
// whose instruction stream is exactly one expression followed by
// RETURN_VALUE. It drives the nested Decompiler's expression handlers only
// (RETURN_VALUE is a terminator, never dispatched) and returns the single
// expression left on its operand stack.
func decompileExprBody(d *Decompiler, code *codeobject.Code) (expr, error) {
	nested := newDecompiler(code, d.version, 0)
	if _, err := nested.Run(bytecode.RETURN_VALUE); err != nil {
		return nil, err
	}
	if nested.stack.len() != 1 {
		return nil, newStructuralMismatch(code, "decompileExprBody", "lambda body did not leave exactly one expression")
	}
	e, _ := nested.stack.pop(code, 0)
	return e, nil
}

// buildParams renders a nested code object's parameter list: positional
// names from Locals[0:Argcount), defaults binding from the right, then
// *rest and **kw if the corresponding flag bits are set.
func buildParams(code *codeobject.Code, defaults []expr) string {
	parts := make([]string, 0, code.Argcount+2)
	firstDefault := code.Argcount - len(defaults)
	for i := 0; i < code.Argcount; i++ {
		name := code.Locals[i]
		if i >= firstDefault {
			parts = append(parts, name+"="+defaults[i-firstDefault].renderAt(precComma))
		} else {
			parts = append(parts, name)
		}
	}
	idx := code.Argcount
	if code.HasVarargs() {
		parts = append(parts, "*"+code.Locals[idx])
		idx++
	}
	if code.HasKwargs() {
		parts = append(parts, "**"+code.Locals[idx])
	}
	return strings.Join(parts, ", ")
}

// finishFuncDef consumes the trailing STORE_* the compiler emits to bind
// the function object to its name, sub-decompiles the nested code object's
// full body, and emits the "def Name(params):" header with its body
// attached.
func finishFuncDef(d *Decompiler, out stmtMap, code *codeobject.Code, defaults []expr) error {
	name, err := consumeBindingName(d)
	if err != nil {
		return err
	}
	nested := newDecompiler(code, d.version, d.indent+1)
	body, err := nested.Run()
	if err != nil {
		return err
	}
	header := d.indentText() + "def " + name + "(" + buildParams(code, defaults) + "):"
	line := d.cur.getLine()
	maxLine := out.attach(line, header, body)
	d.cur.setMinLine(maxLine)
	return nil
}

// finishClassDef consumes the trailing STORE_* binding the class name and
// emits the "class Name(Bases):" header with the class body attached.
// CALL_FUNCTION's own push/pop of the class-body call result is never
// modeled on the symbolic stack: the nested code object was already taken
// directly off the stack in makeFunction, so the only entries left here are
// the ones pushed before MAKE_FUNCTION ran, name and bases.
func finishClassDef(d *Decompiler, out stmtMap, code *codeobject.Code) error {
	bases, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	className, err := d.stack.pop(d.code, d.cur.lastOp)
	if err != nil {
		return err
	}
	name, err := consumeBindingName(d)
	if err != nil {
		return err
	}
	if name != bareKeyText(className) {
		return newStructuralMismatch(d.code, "finishClassDef", "class binding name does not match BUILD_CLASS name constant")
	}

	nested := newDecompiler(code, d.version, d.indent+1)
	body, err := nested.Run()
	if err != nil {
		return err
	}

	header := d.indentText() + "class " + name + ":"
	if basesText := bases.renderAt(precComma); basesText != "()" {
		header = d.indentText() + "class " + name + "(" + basesText + "):"
	}
	line := d.cur.getLine()
	maxLine := out.attach(line, header, body)
	d.cur.setMinLine(maxLine)
	return nil
}

// consumeBindingName reads the STORE_FAST/NAME/GLOBAL opcode the compiler
// inserts right after a function or class object is built, and returns the
// name it binds.
func consumeBindingName(d *Decompiler) (string, error) {
	op, err := d.cur.readOpcode(bytecode.STORE_FAST, bytecode.STORE_NAME, bytecode.STORE_GLOBAL)
	if err != nil {
		return "", err
	}
	k, err := d.cur.readOperand()
	if err != nil {
		return "", err
	}
	if op == bytecode.STORE_FAST {
		return d.cur.getLocal(k)
	}
	return d.cur.getName(k)
}
