package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/mna/unspool/codeobject"
	"github.com/mna/unspool/loader"
)

// Disassemble implements the "disassemble" command: print the raw
// instruction listing of every file's top-level code object, followed by
// every function and class body nested inside it.
func (c *Cmd) Disassemble(ctx context.Context, stdio mainer.Stdio, args []string) error {
	var failed bool
	for _, path := range args {
		if err := disassembleFile(stdio, path); err != nil {
			printError(stdio, err)
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("disassemble: one or more files failed")
	}
	return nil
}

func disassembleFile(stdio mainer.Stdio, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	mod, err := loader.Load(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Fprintf(stdio.Stdout, "%s (version %s):\n", path, mod.Version)
	disassembleCode(stdio, mod.Code, 0)
	return nil
}

// disassembleCode prints code's listing and then recurses into every
// nested *codeobject.Code constant, at an indented, disambiguating header.
func disassembleCode(stdio mainer.Stdio, code *codeobject.Code, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	fmt.Fprintf(stdio.Stdout, "%sdisassembly of %s:\n", indent, code.Name)
	fmt.Fprint(stdio.Stdout, codeobject.Disassemble(code))
	for _, c := range code.Constants {
		if nested, ok := c.(*codeobject.Code); ok {
			disassembleCode(stdio, nested, depth+1)
		}
	}
}
