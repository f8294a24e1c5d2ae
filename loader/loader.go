// Package loader implements the module loader: it reads a compiled module
// file's 4-byte magic header, 4-byte timestamp, and marshalled code object,
// and resolves the magic to a language version the rest of the toolchain
// dispatches on.
package loader

import (
	"fmt"
	"io"

	"github.com/mna/unspool/bytecode"
	"github.com/mna/unspool/codeobject"
)

// UnsupportedVersion reports a magic number this loader does not recognize.
// It carries the raw bytes so a caller can report them without this package
// needing to know how the caller wants them formatted.
type UnsupportedVersion struct {
	Magic bytecode.Magic
}

func (e *UnsupportedVersion) Error() string {
	return fmt.Sprintf("loader: unrecognized module magic % x", e.Magic[:])
}

// Module is a loaded compiled module: its language version and top-level
// code object.
type Module struct {
	Version bytecode.Version
	Code    *codeobject.Code
}

// Load reads a compiled module from r: magic, timestamp, then a single
// marshalled code object. It returns *UnsupportedVersion if the magic is not
// one of the versions this toolchain declares support for, and a wrapped
// marshal-format error (suitable for classifying as InputMalformed by the
// caller) if the stream is truncated or structurally invalid.
func Load(r io.Reader) (*Module, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("loader: reading header: %w", err)
	}

	var magic bytecode.Magic
	copy(magic[:], header[:4])
	version, ok := bytecode.VersionForMagic(magic)
	if !ok {
		return nil, &UnsupportedVersion{Magic: magic}
	}
	// header[4:8] is the source modification timestamp; the decompiler has
	// no use for it and does not retain it.

	u := newUnmarshaler(r)
	obj, err := u.readObject()
	if err != nil {
		return nil, fmt.Errorf("loader: reading code object: %w", err)
	}
	code, ok := obj.(*codeobject.Code)
	if !ok {
		return nil, fmt.Errorf("loader: top-level object is not a code object (got %T)", obj)
	}

	return &Module{Version: version, Code: code}, nil
}
