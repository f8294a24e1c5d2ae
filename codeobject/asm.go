package codeobject

import (
	"fmt"

	"github.com/dolthub/swiss"
	"github.com/mna/unspool/bytecode"
)

// Builder assembles a Code value instruction by instruction. It exists so
// that tests can construct code objects without depending on an external compiler for the target
// language, the same role compiler.Asm/Dasm fill for nenuphar's own
// bytecode.
type Builder struct {
	code     Code
	constIdx *swiss.Map[interface{}, int]
	localIdx *swiss.Map[string, int]
	nameIdx  *swiss.Map[string, int]
	labels   map[string]int // label name -> byte offset once resolved
	patches  []patch        // forward-reference jump operands to patch
	lastAddr int            // byte offset of the line-table watermark
	lastLine int
}

type patch struct {
	operandAt int  // byte offset of the 2-byte operand to patch
	label     string
	relative bool // true for the forward-jump family, false for JUMP_ABSOLUTE
}

// NewBuilder starts a new function body at the given first source line.
func NewBuilder(name string, argcount, flags, firstLine int) *Builder {
	return &Builder{
		code: Code{
			Name:      name,
			Argcount:  argcount,
			Flags:     flags,
			FirstLine: firstLine,
		},
		constIdx: swiss.NewMap[interface{}, int](8),
		localIdx: swiss.NewMap[string, int](8),
		nameIdx:  swiss.NewMap[string, int](8),
		labels:   make(map[string]int),
		lastLine: firstLine,
	}
}

// Const interns a constant value and returns its index.
func (b *Builder) Const(v interface{}) int {
	if i, ok := b.constIdx.Get(v); ok {
		return i
	}
	i := len(b.code.Constants)
	b.code.Constants = append(b.code.Constants, v)
	b.constIdx.Put(v, i)
	return i
}

// ConstRaw appends a constant without interning (needed for uncomparable
// values such as nested *Code or Tuple).
func (b *Builder) ConstRaw(v interface{}) int {
	i := len(b.code.Constants)
	b.code.Constants = append(b.code.Constants, v)
	return i
}

// Local interns a local variable name and returns its index.
func (b *Builder) Local(name string) int {
	if i, ok := b.localIdx.Get(name); ok {
		return i
	}
	i := len(b.code.Locals)
	b.code.Locals = append(b.code.Locals, name)
	b.localIdx.Put(name, i)
	return i
}

// Name interns a global/attribute/import name and returns its index.
func (b *Builder) Name(name string) int {
	if i, ok := b.nameIdx.Get(name); ok {
		return i
	}
	i := len(b.code.Names)
	b.code.Names = append(b.code.Names, name)
	b.nameIdx.Put(name, i)
	return i
}

// Pos returns the current byte offset, for recording jump targets taken
// before the jump is known (loop back-edges).
func (b *Builder) Pos() int { return len(b.code.Instructions) }

// Label declares name as referring to the current byte offset.
func (b *Builder) Label(name string) {
	b.labels[name] = b.Pos()
}

// SetLine advances the line-table watermark: every instruction emitted
// after this call is attributed to line, until the next SetLine call.
func (b *Builder) SetLine(line int) {
	delta := b.Pos() - b.lastAddr
	for delta > 255 {
		b.code.LineTable = append(b.code.LineTable, 255, 0)
		delta -= 255
	}
	lineDelta := line - b.lastLine
	b.code.LineTable = append(b.code.LineTable, byte(delta), byte(lineDelta))
	b.lastAddr = b.Pos()
	b.lastLine = line
}

// Emit appends an opcode with no operand.
func (b *Builder) Emit(op bytecode.Op) {
	if bytecode.HasOperand(op) {
		panic(fmt.Sprintf("%s requires an operand", op))
	}
	b.code.Instructions = append(b.code.Instructions, byte(op))
}

// EmitArg appends an opcode with a 2-byte little-endian operand.
func (b *Builder) EmitArg(op bytecode.Op, arg int) {
	if !bytecode.HasOperand(op) {
		panic(fmt.Sprintf("%s does not take an operand", op))
	}
	b.code.Instructions = append(b.code.Instructions, byte(op), byte(arg), byte(arg>>8))
}

// relativeJump reports whether op's operand is a forward delta measured from
// just past the operand (JUMP_FORWARD, JUMP_IF_FALSE, JUMP_IF_TRUE,
// SETUP_LOOP, SETUP_EXCEPT, SETUP_FINALLY), as opposed to JUMP_ABSOLUTE and
// FOR_LOOP's raw absolute byte offset.
func relativeJump(op bytecode.Op) bool {
	switch op {
	case bytecode.JUMP_FORWARD, bytecode.JUMP_IF_FALSE, bytecode.JUMP_IF_TRUE,
		bytecode.SETUP_LOOP, bytecode.SETUP_EXCEPT, bytecode.SETUP_FINALLY:
		return true
	default:
		return false
	}
}

// EmitJump appends a jump-class opcode whose operand refers to label, which
// may be declared later in the stream; the operand is back-patched once the
// label resolves. Build resolves the operand using the convention op's own
// opcode calls for: a byte delta counted from just past the operand for the
// forward-jump family, or the raw absolute byte offset for JUMP_ABSOLUTE and
// FOR_LOOP.
func (b *Builder) EmitJump(op bytecode.Op, label string) {
	operandAt := b.Pos() + 1
	b.code.Instructions = append(b.code.Instructions, byte(op), 0, 0)
	b.patches = append(b.patches, patch{operandAt: operandAt, label: label, relative: relativeJump(op)})
}

// EmitJumpAbs appends JUMP_ABSOLUTE (or any opcode taking a raw byte offset)
// to label. It is the same as EmitJump: the operand is always recorded as
// a pending patch and resolved by Build, whether or not label was already
// declared.
func (b *Builder) EmitJumpAbs(op bytecode.Op, label string) {
	b.EmitJump(op, label)
}

// Build finalizes the code object: resolves every pending jump patch and
// returns the assembled Code.
func (b *Builder) Build() *Code {
	for _, p := range b.patches {
		target, ok := b.labels[p.label]
		if !ok {
			panic(fmt.Sprintf("unresolved label %q", p.label))
		}
		operand := target
		if p.relative {
			operand = target - (p.operandAt + 2)
		}
		b.code.Instructions[p.operandAt] = byte(operand)
		b.code.Instructions[p.operandAt+1] = byte(operand >> 8)
	}
	c := b.code
	return &c
}

// Disassemble renders code's instruction stream as one mnemonic per line,
// resolving operand indices against the constant/local/name tables where
// the opcode makes that unambiguous. It never fails: an unrecognized
// opcode byte or a truncated trailing operand is rendered as a diagnostic
// placeholder rather than returning an error, since its only caller is the
// StructuralMismatch/InputMalformed diagnostic dump, which must not itself
// be able to fail.
func Disassemble(code *Code) string {
	var out []byte
	addr := 0
	code_ := code.Instructions
	for addr < len(code_) {
		op := bytecode.Op(code_[addr])
		line := fmt.Sprintf("%6d %s", addr, op)
		size := 1
		if bytecode.HasOperand(op) {
			if addr+3 > len(code_) {
				out = append(out, []byte(line+" <truncated operand>\n")...)
				break
			}
			arg := int(code_[addr+1]) | int(code_[addr+2])<<8
			line += operandAnnotation(code, op, arg)
			size = 3
		}
		out = append(out, []byte(line+"\n")...)
		addr += size
	}
	return string(out)
}

func operandAnnotation(code *Code, op bytecode.Op, arg int) string {
	switch op {
	case bytecode.LOAD_CONST:
		if arg < len(code.Constants) {
			return fmt.Sprintf(" %d (%v)", arg, code.Constants[arg])
		}
	case bytecode.LOAD_FAST, bytecode.STORE_FAST, bytecode.DELETE_FAST:
		if arg < len(code.Locals) {
			return fmt.Sprintf(" %d (%s)", arg, code.Locals[arg])
		}
	case bytecode.LOAD_GLOBAL, bytecode.LOAD_NAME_OP, bytecode.STORE_NAME,
		bytecode.DELETE_NAME, bytecode.STORE_GLOBAL, bytecode.DELETE_GLOBAL,
		bytecode.LOAD_ATTR, bytecode.STORE_ATTR, bytecode.DELETE_ATTR,
		bytecode.IMPORT_NAME, bytecode.IMPORT_FROM:
		if arg < len(code.Names) {
			return fmt.Sprintf(" %d (%s)", arg, code.Names[arg])
		}
	case bytecode.COMPARE_OP:
		if arg < len(bytecode.CompareOps) {
			return fmt.Sprintf(" %d (%s)", arg, bytecode.CompareOps[arg])
		}
	}
	return fmt.Sprintf(" %d", arg)
}
