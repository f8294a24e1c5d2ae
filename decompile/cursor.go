package decompile

import (
	"github.com/mna/unspool/bytecode"
	"github.com/mna/unspool/codeobject"
)

// cursor is a stateful reader over a code object's instruction bytes: it
// decodes one opcode/operand pair at a time, accumulates EXTENDED_ARG high
// bits across a read, resolves constant/local/name table lookups, and
// enforces the bounded sub-scan discipline the structural recognizer relies
// on (pushStop/popStop) so a handler can never read past the region it
// was given to look at.
type cursor struct {
	code    *codeobject.Code
	i       int   // next byte offset to decode
	lastOp  int   // byte offset of the most recently consumed opcode
	pending int   // accumulated EXTENDED_ARG high bits, cleared on read
	minLine int   // watermark passed to getLine
	stops   []int // bounded sub-scan stop offsets, innermost last
}

func newCursor(code *codeobject.Code) *cursor {
	return &cursor{code: code, stops: []int{len(code.Instructions)}}
}

func (c *cursor) stopOffset() int {
	return c.stops[len(c.stops)-1]
}

// pushStop bounds subsequent reads to end at offset, for a recursive
// sub-decompile of a nested region (e.g. a loop body before its jump
// target). popStop restores the previous bound.
func (c *cursor) pushStop(offset int) {
	c.stops = append(c.stops, offset)
}

func (c *cursor) popStop() {
	c.stops = c.stops[:len(c.stops)-1]
}

// atEnd reports whether the cursor has consumed every instruction in the
// code object (not merely reached the current stop bound).
func (c *cursor) atEnd() bool {
	return c.i == len(c.code.Instructions)
}

// nextOpcode peeks at the byte under the cursor and resolves it to a
// mnemonic without consuming it, transparently consuming and folding in any
// EXTENDED_ARG prefix it finds first. It returns ok=false once the cursor
// reaches the active stop bound.
func (c *cursor) nextOpcode() (op bytecode.Op, ok bool, err error) {
	for {
		if c.i >= c.stopOffset() {
			return 0, false, nil
		}
		if c.i >= len(c.code.Instructions) {
			return 0, false, &InputMalformedError{Code: c.code, Offset: c.i, Reason: "instruction stream ends mid-read"}
		}
		op = bytecode.Op(c.code.Instructions[c.i])
		if op != bytecode.EXTENDED_ARG {
			return op, true, nil
		}
		c.lastOp = c.i
		c.i++
		arg, err := c.readRawOperand()
		if err != nil {
			return 0, false, err
		}
		c.pending = c.pending<<16 | arg
	}
}

// readOpcode consumes the opcode under the cursor (folding in any
// EXTENDED_ARG prefix as nextOpcode does) and fails unless it is one of
// expected. An empty expected set accepts any opcode.
func (c *cursor) readOpcode(expected ...bytecode.Op) (bytecode.Op, error) {
	op, ok, err := c.nextOpcode()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &InputMalformedError{Code: c.code, Offset: c.i, Reason: "expected an opcode, found end of region"}
	}
	if len(expected) > 0 && !containsOp(expected, op) {
		return 0, newStructuralMismatch(c.code, "cursor.readOpcode",
			"opcode "+op.String()+" is not in the expected set at this point")
	}
	c.lastOp = c.i
	c.i++
	return op, nil
}

func containsOp(set []bytecode.Op, op bytecode.Op) bool {
	for _, want := range set {
		if want == op {
			return true
		}
	}
	return false
}

// readOperand consumes the two little-endian operand bytes following the
// opcode just read, ORs in any pending EXTENDED_ARG high bits, and clears
// the pending accumulator.
func (c *cursor) readOperand() (int, error) {
	arg, err := c.readRawOperand()
	if err != nil {
		return 0, err
	}
	arg |= c.pending << 16
	c.pending = 0
	return arg, nil
}

func (c *cursor) readRawOperand() (int, error) {
	if c.i+2 > len(c.code.Instructions) {
		return 0, &InputMalformedError{Code: c.code, Offset: c.i, Reason: "operand truncated"}
	}
	lo := int(c.code.Instructions[c.i])
	hi := int(c.code.Instructions[c.i+1])
	c.i += 2
	return lo | hi<<8, nil
}

func (c *cursor) getConstant(k int) (interface{}, error) {
	if k < 0 || k >= len(c.code.Constants) {
		return nil, &InputMalformedError{Code: c.code, Offset: c.lastOp, Reason: "constant index out of range"}
	}
	return c.code.Constants[k], nil
}

func (c *cursor) getLocal(k int) (string, error) {
	if k < 0 || k >= len(c.code.Locals) {
		return "", &InputMalformedError{Code: c.code, Offset: c.lastOp, Reason: "local index out of range"}
	}
	return c.code.Locals[k], nil
}

func (c *cursor) getName(k int) (string, error) {
	if k < 0 || k >= len(c.code.Names) {
		return "", &InputMalformedError{Code: c.code, Offset: c.lastOp, Reason: "name index out of range"}
	}
	return c.code.Names[k], nil
}

// getLine returns the source line attributed to the most recently consumed
// opcode, never lower than minLine (the statement emitter's watermark,
// which prevents a backward jump's target from reporting an earlier line
// than code already emitted).
func (c *cursor) getLine() int {
	l := codeobject.LineOf(c.code, c.lastOp)
	if l < c.minLine {
		return c.minLine
	}
	return l
}

func (c *cursor) setMinLine(line int) {
	if line > c.minLine {
		c.minLine = line
	}
}
