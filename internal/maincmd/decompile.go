package maincmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mna/mainer"
	"github.com/mna/unspool/decompile"
	"github.com/mna/unspool/loader"
)

// Decompile implements the "decompile" command: reconstruct source text
// from each file's compiled module.
func (c *Cmd) Decompile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	var failed bool
	for _, path := range args {
		if err := decompileFile(stdio, path, c.Lines); err != nil {
			printError(stdio, err)
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("decompile: one or more files failed")
	}
	return nil
}

func decompileFile(stdio mainer.Stdio, path string, withLines bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	mod, err := loader.Load(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	src, err := decompile.DecompileCode(mod.Code, mod.Version)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if withLines {
		fmt.Fprint(stdio.Stdout, formatWithLines(src))
		return nil
	}
	fmt.Fprintln(stdio.Stdout, decompile.FormatLines(src))
	return nil
}

// formatWithLines renders src the same way decompile.FormatLines does, but
// prefixed with each rendered line's source line number.
func formatWithLines(src map[int]string) string {
	max := 0
	for line := range src {
		if line > max {
			max = line
		}
	}
	lines := make([]string, max)
	for i := 1; i <= max; i++ {
		lines[i-1] = fmt.Sprintf("%4d| %s", i, src[i])
	}
	return strings.Join(lines, "\n") + "\n"
}
