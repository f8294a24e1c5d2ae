package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpString(t *testing.T) {
	assert.Equal(t, "LOAD_CONST", LOAD_CONST.String())
	assert.Equal(t, "SLICE+1", SLICE_1.String())
	assert.Contains(t, Op(255).String(), "illegal opcode")
}

func TestLookup(t *testing.T) {
	op, ok := Lookup("BINARY_ADD")
	require.True(t, ok)
	assert.Equal(t, BINARY_ADD, op)

	_, ok = Lookup("NOT_A_REAL_OPCODE")
	assert.False(t, ok)
}

func TestHasOperand(t *testing.T) {
	cases := []struct {
		op   Op
		want bool
	}{
		{POP_TOP, false},
		{ROT_THREE, false},
		{BUILD_CLASS, false},
		{LOAD_CONST, true},
		{CALL_FUNCTION_VAR_KW, true},
		{IMPORT_STAR, true},
	}
	for _, c := range cases {
		t.Run(c.op.String(), func(t *testing.T) {
			assert.Equal(t, c.want, HasOperand(c.op))
		})
	}
}

func TestCompareOpsAndExceptionMatch(t *testing.T) {
	require.Less(t, ExceptionMatch, len(CompareOps))
	assert.Equal(t, "exception match", CompareOps[ExceptionMatch])
	assert.Equal(t, "<", CompareOps[0])
}

func TestClassOf(t *testing.T) {
	assert.Equal(t, CompareIn, ClassOf("in"))
	assert.Equal(t, CompareIn, ClassOf("not in"))
	assert.Equal(t, CompareIs, ClassOf("is"))
	assert.Equal(t, CompareIs, ClassOf("is not"))
	assert.Equal(t, CompareRelational, ClassOf("=="))
	assert.Equal(t, CompareRelational, ClassOf("<="))
}
