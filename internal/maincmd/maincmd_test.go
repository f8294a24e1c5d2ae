package maincmd_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/mna/mainer"
	"github.com/mna/unspool/bytecode"
	"github.com/mna/unspool/codeobject"
	"github.com/mna/unspool/internal/maincmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// marshalWriter hand-assembles a compiled-module file byte for byte, in the
// same tagged wire format package loader reads, so the maincmd commands can
// be exercised end to end against a real file without any real compiler.
type marshalWriter struct {
	buf bytes.Buffer
}

func (w *marshalWriter) int32(n int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(n))
	w.buf.Write(b[:])
}

func (w *marshalWriter) str(s string) {
	w.buf.WriteByte('s')
	w.int32(int32(len(s)))
	w.buf.WriteString(s)
}

func (w *marshalWriter) strTuple(names []string) {
	w.buf.WriteByte('(')
	w.int32(int32(len(names)))
	for _, n := range names {
		w.str(n)
	}
}

// constObj marshals one constant-pool entry; this fixture only needs
// integers, which is all the test code objects below use.
func (w *marshalWriter) constObj(v interface{}) {
	switch val := v.(type) {
	case int64:
		w.buf.WriteByte('i')
		w.int32(int32(val))
	default:
		panic("unsupported constant kind in test fixture")
	}
}

func (w *marshalWriter) moduleFile(magic bytecode.Magic, code *codeobject.Code) []byte {
	w.buf.Write(magic[:])
	w.buf.Write([]byte{0, 0, 0, 0}) // timestamp

	w.buf.WriteByte('c')
	w.int32(int32(code.Argcount))
	w.int32(int32(len(code.Locals))) // nlocals
	w.int32(0)                       // stacksize, unused
	w.int32(int32(code.Flags))
	w.str(string(code.Instructions))

	w.buf.WriteByte('(')
	w.int32(int32(len(code.Constants)))
	for _, c := range code.Constants {
		w.constObj(c)
	}

	w.strTuple(code.Names)
	w.strTuple(code.Locals)
	w.str("<test>")
	w.str(code.Name)
	w.int32(int32(code.FirstLine))
	w.str(string(code.LineTable))

	return w.buf.Bytes()
}

func writeModuleFile(t *testing.T, code *codeobject.Code) string {
	t.Helper()
	w := &marshalWriter{}
	data := w.moduleFile(bytecode.Magic{0x87, 0xC6, 0x0D, 0x0A}, code)
	path := filepath.Join(t.TempDir(), "mod.pyc")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func returnOneCode() *codeobject.Code {
	b := codeobject.NewBuilder("<module>", 0, 0, 1)
	b.SetLine(1)
	k := b.Const(int64(1))
	b.EmitArg(bytecode.LOAD_CONST, k)
	b.Emit(bytecode.RETURN_VALUE)
	return b.Build()
}

func TestDecompileCommand(t *testing.T) {
	path := writeModuleFile(t, returnOneCode())
	var out, errOut bytes.Buffer
	stdio := mainer.Stdio{Stdout: &out, Stderr: &errOut}

	c := &maincmd.Cmd{}
	err := c.Decompile(context.Background(), stdio, []string{path})
	require.NoError(t, err)
	assert.Equal(t, "return 1\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestDecompileCommandWithLines(t *testing.T) {
	path := writeModuleFile(t, returnOneCode())
	var out, errOut bytes.Buffer
	stdio := mainer.Stdio{Stdout: &out, Stderr: &errOut}

	c := &maincmd.Cmd{Lines: true}
	err := c.Decompile(context.Background(), stdio, []string{path})
	require.NoError(t, err)
	assert.Equal(t, "   1| return 1\n", out.String())
}

func TestDecompileCommandMissingFile(t *testing.T) {
	var out, errOut bytes.Buffer
	stdio := mainer.Stdio{Stdout: &out, Stderr: &errOut}

	c := &maincmd.Cmd{}
	missing := filepath.Join(t.TempDir(), "nope.pyc")
	err := c.Decompile(context.Background(), stdio, []string{missing})
	require.Error(t, err)
	assert.Contains(t, errOut.String(), missing)
}

func TestDisassembleCommand(t *testing.T) {
	path := writeModuleFile(t, returnOneCode())
	var out, errOut bytes.Buffer
	stdio := mainer.Stdio{Stdout: &out, Stderr: &errOut}

	c := &maincmd.Cmd{}
	err := c.Disassemble(context.Background(), stdio, []string{path})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "disassembly of <module>:")
	assert.Contains(t, out.String(), "LOAD_CONST")
	assert.Contains(t, out.String(), "RETURN_VALUE")
	assert.Empty(t, errOut.String())
}
