package codeobject_test

import (
	"strings"
	"testing"

	"github.com/mna/unspool/bytecode"
	"github.com/mna/unspool/codeobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderBuildsSimpleCode(t *testing.T) {
	b := codeobject.NewBuilder("<module>", 0, 0, 1)
	b.SetLine(1)
	k := b.Const(int64(1))
	b.EmitArg(bytecode.LOAD_CONST, k)
	n := b.Name("x")
	b.EmitArg(bytecode.STORE_NAME, n)
	b.SetLine(2)
	b.EmitArg(bytecode.LOAD_NAME_OP, n)
	b.Emit(bytecode.RETURN_VALUE)
	code := b.Build()

	require.Equal(t, []interface{}{int64(1)}, code.Constants)
	require.Equal(t, []string{"x"}, code.Names)
	assert.Equal(t, 1, codeobject.LineOf(code, 0))
	assert.Equal(t, 2, codeobject.LineOf(code, len(code.Instructions)-1))
}

func TestBuilderEmitPanicsOnOperandMismatch(t *testing.T) {
	b := codeobject.NewBuilder("<module>", 0, 0, 1)
	assert.Panics(t, func() { b.Emit(bytecode.LOAD_CONST) })
	assert.Panics(t, func() { b.EmitArg(bytecode.POP_TOP, 0) })
}

func TestBuilderJumpPatching(t *testing.T) {
	b := codeobject.NewBuilder("<module>", 0, 0, 1)
	b.SetLine(1)
	b.EmitJump(bytecode.JUMP_FORWARD, "end")
	b.Emit(bytecode.POP_TOP)
	b.Label("end")
	b.Emit(bytecode.RETURN_VALUE)
	code := b.Build()

	// JUMP_FORWARD's operand is the relative distance to "end", measured
	// from just past the 2-byte operand.
	arg := int(code.Instructions[1]) | int(code.Instructions[2])<<8
	assert.Equal(t, 1, arg) // skips exactly the one-byte POP_TOP
}

func TestDisassemble(t *testing.T) {
	b := codeobject.NewBuilder("<module>", 0, 0, 1)
	b.SetLine(1)
	k := b.Const(int64(42))
	b.EmitArg(bytecode.LOAD_CONST, k)
	b.Emit(bytecode.RETURN_VALUE)
	code := b.Build()

	out := codeobject.Disassemble(code)
	assert.True(t, strings.Contains(out, "LOAD_CONST"))
	assert.True(t, strings.Contains(out, "42"))
	assert.True(t, strings.Contains(out, "RETURN_VALUE"))
}

func TestDisassembleNeverFails(t *testing.T) {
	code := &codeobject.Code{
		Name:         "<truncated>",
		Instructions: []byte{byte(bytecode.LOAD_CONST), 0},
	}
	out := codeobject.Disassemble(code)
	assert.Contains(t, out, "truncated operand")
}
