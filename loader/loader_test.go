package loader_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/mna/unspool/bytecode"
	"github.com/mna/unspool/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// marshalWriter hand-assembles a byte stream in the same tagged-value wire
// format package loader's unmarshaler reads, so Load can be exercised
// without any real compiler ever having produced the bytes.
type marshalWriter struct {
	buf bytes.Buffer
}

func (w *marshalWriter) int32(n int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(n))
	w.buf.Write(b[:])
}

func (w *marshalWriter) intObj(n int32) {
	w.buf.WriteByte('i')
	w.int32(n)
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

// code writes a full marshalled code object. consts is a list of thunks so
// callers can mix value kinds (intObj, str, ...) in the constant pool.
func (w *marshalWriter) code(argcount, nlocals, stacksize, flags int32, body string,
	consts []func(), names, varnames []string, filename, name string, firstline int32, lnotab string) {
	w.buf.WriteByte('c')
	w.int32(argcount)
	w.int32(nlocals)
	w.int32(stacksize)
	w.int32(flags)
	w.str(body)

	w.buf.WriteByte('(')
	w.int32(int32(len(consts)))
	for _, emit := range consts {
		emit()
	}

	w.strTuple(names)
	w.strTuple(varnames)
	w.str(filename)
	w.str(name)
	w.int32(firstline)
	w.str(lnotab)
}

func buildModule(magic bytecode.Magic) []byte {
	var out bytes.Buffer
	out.Write(magic[:])
	out.Write([]byte{0, 0, 0, 0}) // timestamp, ignored by Load

	w := &marshalWriter{}
	w.code(0, 1, 2, 0,
		string([]byte{0x01, 0x02, 0x03}),
		[]func(){func() { w.intObj(42) }},
		[]string{"x"}, []string{"y"},
		"<test>", "<module>", 1, string([]byte{0, 1}))
	out.Write(w.buf.Bytes())
	return out.Bytes()
}

func TestLoadRoundTrip(t *testing.T) {
	data := buildModule(bytecode.Magic{0x87, 0xC6, 0x0D, 0x0A})
	mod, err := loader.Load(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, bytecode.Version20, mod.Version)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, mod.Code.Instructions)
	assert.Equal(t, []interface{}{int64(42)}, mod.Code.Constants)
	assert.Equal(t, []string{"x"}, mod.Code.Names)
	assert.Equal(t, []string{"y"}, mod.Code.Locals)
	assert.Equal(t, "<module>", mod.Code.Name)
	assert.Equal(t, 1, mod.Code.FirstLine)
	assert.Equal(t, []byte{0, 1}, mod.Code.LineTable)
}

func TestLoadUnsupportedVersion(t *testing.T) {
	var out bytes.Buffer
	out.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	out.Write([]byte{0, 0, 0, 0})

	_, err := loader.Load(&out)
	require.Error(t, err)
	var unsupported *loader.UnsupportedVersion
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, bytecode.Magic{0xDE, 0xAD, 0xBE, 0xEF}, unsupported.Magic)
}

func TestLoadTruncatedHeader(t *testing.T) {
	_, err := loader.Load(bytes.NewReader([]byte{0x87, 0xC6}))
	require.Error(t, err)
}
