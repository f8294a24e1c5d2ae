package decompile

import (
	"fmt"

	"github.com/mna/unspool/codeobject"
)

// InputMalformedError reports bytecode that cannot be decoded at all:
// truncated mid-instruction, an operand index outside its table, or a
// byte value no recognized opcode claims. It is always fatal.
type InputMalformedError struct {
	Code   *codeobject.Code
	Offset int
	Reason string
}

func (e *InputMalformedError) Error() string {
	return fmt.Sprintf("decompile: malformed input in %q at offset %d: %s", e.Code.Name, e.Offset, e.Reason)
}

// StructuralMismatchError reports an idiom handler whose bounded lookahead
// found an opcode outside its declared expected set, or a recursive
// sub-decompile that left the operand stack in an unexpected shape. It
// carries a disassembly dump of the offending code object, since the
// handler's own state is gone by the time a caller can log anything useful.
type StructuralMismatchError struct {
	Code       *codeobject.Code
	Handler    string
	Reason     string
	Disasm     string
}

func (e *StructuralMismatchError) Error() string {
	return fmt.Sprintf("decompile: structural mismatch in %s (%q): %s\n%s",
		e.Handler, e.Code.Name, e.Reason, e.Disasm)
}

// newStructuralMismatch builds a StructuralMismatchError, filling Disasm
// from code via codeobject.Disassemble so every mismatch is self-diagnosing.
func newStructuralMismatch(code *codeobject.Code, handler, reason string) *StructuralMismatchError {
	return &StructuralMismatchError{
		Code:    code,
		Handler: handler,
		Reason:  reason,
		Disasm:  codeobject.Disassemble(code),
	}
}
