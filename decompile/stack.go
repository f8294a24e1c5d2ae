package decompile

import (
	"fmt"

	"github.com/mna/unspool/codeobject"
)

// opstack is the symbolic operand stack: one per Decompiler, holding
// expression-tree nodes in place of the runtime values the actual
// interpreter would hold at the same program point.
type opstack struct {
	items []expr
}

func (s *opstack) push(e expr) { s.items = append(s.items, e) }

func (s *opstack) pop(code *codeobject.Code, offset int) (expr, error) {
	if len(s.items) == 0 {
		return nil, &InputMalformedError{Code: code, Offset: offset, Reason: "operand stack underflow"}
	}
	e := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return e, nil
}

func (s *opstack) peek() expr {
	if len(s.items) == 0 {
		return nil
	}
	return s.items[len(s.items)-1]
}

func (s *opstack) len() int { return len(s.items) }

// dupTop duplicates the top entry by reference: node sharing is sound
// because every node is immutable once built (mapExpr is the one mutable
// node, and it is only ever duplicated before any STORE_SUBSCR mutates it).
func (s *opstack) dupTop() {
	if top := s.peek(); top != nil {
		s.push(top)
	}
}

// dupTopX duplicates the top n entries, preserving their order.
func (s *opstack) dupTopX(n int) {
	if n <= 0 || n > len(s.items) {
		return
	}
	top := s.items[len(s.items)-n:]
	dup := make([]expr, n)
	copy(dup, top)
	s.items = append(s.items, dup...)
}

func (s *opstack) rotTwo() {
	n := len(s.items)
	if n < 2 {
		return
	}
	s.items[n-1], s.items[n-2] = s.items[n-2], s.items[n-1]
}

// rotThree lifts the second and third stack entries one position up and
// moves the top down to third: [c, b, a] (a on top) becomes [a, c, b].
func (s *opstack) rotThree() {
	n := len(s.items)
	if n < 3 {
		return
	}
	a, b, c := s.items[n-1], s.items[n-2], s.items[n-3]
	s.items[n-1] = b
	s.items[n-2] = c
	s.items[n-3] = a
}

// binOpSpec is one entry of binaryOpTable: an opcode's infix spelling and
// precedence rank.
type binOpSpec struct {
	symbol string
	prec   int
}

// binaryOpTable maps a binary/bitwise opcode mnemonic to its infix spelling
// and precedence rank, for the BINARY_* handlers. The augmented-assignment
// (INPLACE_*) handlers use their own table, augmentedOpTable in
// handlers_stmt.go, and render the operator text with an "=" suffix.
var binaryOpTable = map[string]binOpSpec{
	"BINARY_MULTIPLY": {"*", precMult},
	"BINARY_DIVIDE":   {"/", precMult},
	"BINARY_MODULO":   {"%", precMult},
	"BINARY_ADD":      {"+", precAdd},
	"BINARY_SUBTRACT": {"-", precAdd},
	"BINARY_LSHIFT":   {"<<", precShift},
	"BINARY_RSHIFT":   {">>", precShift},
	"BINARY_AND":      {"&", precBAnd},
	"BINARY_XOR":      {"^", precBXor},
	"BINARY_OR":       {"|", precBOr},
}

// binary pops right then left, renders left at op-precedence and right at
// op-precedence+1 (enforcing left associativity), and pushes the composite
// at op-precedence.
func (s *opstack) binary(code *codeobject.Code, offset int, symbol string, prec int) error {
	right, err := s.pop(code, offset)
	if err != nil {
		return err
	}
	left, err := s.pop(code, offset)
	if err != nil {
		return err
	}
	text := left.renderAt(prec) + " " + symbol + " " + right.renderAt(prec+1)
	s.push(newExpr(text, prec))
	return nil
}

// power renders BINARY_POWER right-associatively: left at ATOM (defensive
// parenthesization), right at UNARY unless right is itself a power, in
// which case right renders at ATOM too (so "a ** b ** c" never gains
// spurious parens around its own right-recursion).
func (s *opstack) power(code *codeobject.Code, offset int) error {
	right, err := s.pop(code, offset)
	if err != nil {
		return err
	}
	left, err := s.pop(code, offset)
	if err != nil {
		return err
	}
	rightMin := precUnary
	if right.prec() == precPower {
		rightMin = precAtom
	}
	text := fmt.Sprintf("%s ** %s", left.renderAt(precAtom), right.renderAt(rightMin))
	s.push(newExpr(text, precPower))
	return nil
}
