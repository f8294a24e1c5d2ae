// Package codeobject defines the code object the decompiler engine
// consumes: bytecode plus the constant/local/name tables and line-number
// map a compiler would have emitted alongside it. Code objects are
// immutable once constructed; the module loader (package loader) is the
// only producer of real ones, with this package's Builder assembling code
// objects instruction by instruction for tests that don't want to depend
// on an external compiler.
package codeobject

// Flag bits consumed from Code.Flags.
const (
	FlagVarargs = 1 << iota
	FlagKwargs
)

// Code is an immutable compiled function or module body: the bytecode
// instruction stream plus the tables opcodes index into.
type Code struct {
	Instructions []byte        // ordered byte sequence
	Constants    []interface{} // numbers, strings, Ellipsis{}, nil, *Code, Tuple
	Locals       []string      // local variable names, parameters first
	Names        []string      // global/attribute/import names
	Argcount     int
	Flags        int
	Name         string // "<lambda>" denotes an anonymous function
	FirstLine    int
	LineTable    []byte // alternating (byte-delta, line-delta) pairs
}

// HasVarargs reports whether Flags has the VARARGS bit set.
func (c *Code) HasVarargs() bool { return c.Flags&FlagVarargs != 0 }

// HasKwargs reports whether Flags has the KWARGS bit set.
func (c *Code) HasKwargs() bool { return c.Flags&FlagKwargs != 0 }

// Ellipsis is the sentinel constant value for the "..." literal.
type Ellipsis struct{}

// Tuple is a constant tuple of other constant values (numbers, strings,
// Ellipsis{}, nil, *Code, or nested Tuple), as produced by LOAD_CONST for a
// compile-time-constant tuple literal.
type Tuple []interface{}
