package decompile

import "github.com/mna/unspool/bytecode"

// registerStructuralHandlers wires every opcode whose handler recognizes a
// multi-instruction idiom spanning a bounded sub-region, rather than acting
// on a single instruction in isolation: loops, conditionals, comparison
// chains, imports, and exception handling.
func registerStructuralHandlers(table map[bytecode.Op]handlerFunc) {
	table[bytecode.SETUP_LOOP] = setupLoop
	table[bytecode.JUMP_IF_FALSE] = condJump(false)
	table[bytecode.JUMP_IF_TRUE] = condJump(true)
	table[bytecode.ROT_THREE] = compareChain
	table[bytecode.IMPORT_NAME] = importName
	table[bytecode.SETUP_EXCEPT] = setupExcept
	table[bytecode.SETUP_FINALLY] = setupFinally
	table[bytecode.MAKE_FUNCTION] = makeFunction
}
