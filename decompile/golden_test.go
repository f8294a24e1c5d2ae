package decompile_test

import (
	"flag"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mna/unspool/bytecode"
	"github.com/mna/unspool/codeobject"
	"github.com/mna/unspool/decompile"
	"github.com/mna/unspool/internal/filetest"
	"github.com/stretchr/testify/require"
)

var testUpdateGoldenTests = flag.Bool("test.update-golden-tests", false, "If set, replace expected decompile golden results with actual results.")

// goldenFixtures maps a case's marker file name (testdata/in/<name>.case) to
// the code object it decompiles. The marker files carry no content of their
// own; they exist only so filetest.SourceFiles can enumerate cases the same
// way it enumerates real source files, pairing each with a checked-in
// testdata/out/<name>.case.want golden file.
var goldenFixtures = map[string]func() *codeobject.Code{
	"assign":   goldenAssignCode,
	"ifnoelse": goldenIfNoElseCode,
	"forloop":  goldenForLoopCode,
}

func goldenAssignCode() *codeobject.Code {
	b := codeobject.NewBuilder("<module>", 0, 0, 1)
	b.SetLine(1)
	x := b.Name("x")
	b.EmitArg(bytecode.LOAD_CONST, b.Const(int64(1)))
	b.EmitArg(bytecode.STORE_NAME, x)
	b.SetLine(2)
	b.EmitArg(bytecode.LOAD_NAME_OP, x)
	b.Emit(bytecode.RETURN_VALUE)
	return b.Build()
}

func goldenIfNoElseCode() *codeobject.Code {
	b := codeobject.NewBuilder("<module>", 0, 0, 1)
	b.SetLine(1)
	b.EmitArg(bytecode.LOAD_NAME_OP, b.Name("a"))
	b.EmitJump(bytecode.JUMP_IF_FALSE, "falsepop")
	b.Emit(bytecode.POP_TOP)
	b.SetLine(2)
	b.EmitArg(bytecode.LOAD_CONST, b.Const(int64(1)))
	b.Emit(bytecode.PRINT_ITEM)
	b.Emit(bytecode.PRINT_NEWLINE)
	b.Label("falsepop")
	b.Emit(bytecode.POP_TOP)
	b.SetLine(3)
	b.EmitArg(bytecode.LOAD_CONST, b.Const(int64(2)))
	b.Emit(bytecode.RETURN_VALUE)
	return b.Build()
}

func goldenForLoopCode() *codeobject.Code {
	b := codeobject.NewBuilder("<module>", 0, 0, 1)
	b.SetLine(1)
	b.EmitJump(bytecode.SETUP_LOOP, "exit")
	b.EmitArg(bytecode.LOAD_NAME_OP, b.Name("items"))
	b.EmitArg(bytecode.LOAD_CONST, b.Const(0))
	b.Label("forloop")
	b.EmitJump(bytecode.FOR_LOOP, "bodyend")
	i := b.Name("i")
	b.EmitArg(bytecode.STORE_NAME, i)
	b.SetLine(2)
	b.EmitArg(bytecode.LOAD_NAME_OP, i)
	b.Emit(bytecode.PRINT_ITEM)
	b.Emit(bytecode.PRINT_NEWLINE)
	b.EmitJump(bytecode.JUMP_ABSOLUTE, "forloop")
	b.Label("bodyend")
	b.Emit(bytecode.POP_BLOCK)
	b.Label("exit")
	return b.Build()
}

// TestGoldenDecompile round-trips a handful of hand-built code objects
// through DecompileCode and diffs the reconstructed source against checked-in
// golden files, the same srcDir/resultDir/SourceFiles/DiffOutput shape the
// rest of this codebase's test suites use for file-based fixtures.
func TestGoldenDecompile(t *testing.T) {
	srcDir := filepath.Join("testdata", "in")
	resultDir := filepath.Join("testdata", "out")

	for _, fi := range filetest.SourceFiles(t, srcDir, ".case") {
		fi := fi
		t.Run(fi.Name(), func(t *testing.T) {
			name := strings.TrimSuffix(fi.Name(), ".case")
			build, ok := goldenFixtures[name]
			require.True(t, ok, "no golden fixture registered for %s", fi.Name())

			code := build()
			src, err := decompile.DecompileCode(code, bytecode.Version20)
			require.NoError(t, err)

			out := decompile.FormatLines(src)
			filetest.DiffOutput(t, fi, out, resultDir, testUpdateGoldenTests)
		})
	}
}
