package decompile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mna/unspool/codeobject"
)

// expr is one node of the symbolic operand stack: a rendered text fragment
// tagged with the precedence rank it binds at. renderAt is the only
// contract every node variant obeys: parenthesize iff the node's own
// precedence is lower than the minimum the caller requires.
type expr interface {
	renderAt(minPrec int) string
	prec() int
}

// plainExpr is the universal composite node: pre-rendered text at a given
// precedence. Every other constructor in this file is a convenience wrapper
// that builds one.
type plainExpr struct {
	text string
	p    int
}

func newExpr(text string, p int) expr { return &plainExpr{text: text, p: p} }

func (e *plainExpr) renderAt(minPrec int) string {
	if e.p < minPrec {
		return "(" + e.text + ")"
	}
	return e.text
}

func (e *plainExpr) prec() int { return e.p }

func atom(value string) expr  { return newExpr(value, precAtom) }
func local(name string) expr  { return newExpr(name, precAtom) }
func global(name string) expr { return newExpr(name, precAtom) }

// chain builds a partial chained-comparison expression (the ROT_THREE
// idiom), rendered at CMP precedence regardless of how many fragments it
// accumulates.
func chain(tailText string) expr { return newExpr(tailText, precCmp) }

// constant renders a code object's constant pool entry in its canonical
// textual form: the Ellipsis sentinel as "...", None as "None", strings
// quoted and escaped, numbers via their natural decimal form, and nested
// tuples recursively.
func constant(v interface{}) expr {
	return newExpr(constantText(v), precAtom)
}

func constantText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case codeobject.Ellipsis:
		return "..."
	case bool:
		if val {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return quoteString(val)
	case codeobject.Tuple:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = constantText(e)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *codeobject.Code:
		return fmt.Sprintf("<code %s>", val.Name)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// quoteString renders s the way the target language's repr would: single
// quotes, with embedded backslashes, single quotes, and newlines escaped.
func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// mapExpr is the incrementally-built node for a literal map/dict display:
// BUILD_MAP pushes an empty one, and each STORE_SUBSCR against it while
// still open calls set instead of emitting an assignment statement.
type mapExpr struct {
	keys   []string
	values []string
}

func newMapExpr() *mapExpr { return &mapExpr{} }

func (m *mapExpr) set(key, value expr) {
	m.keys = append(m.keys, key.renderAt(precComma))
	m.values = append(m.values, value.renderAt(precComma))
}

func (m *mapExpr) renderAt(minPrec int) string {
	entries := make([]string, len(m.keys))
	for i := range m.keys {
		entries[i] = m.keys[i] + ": " + m.values[i]
	}
	return "{" + strings.Join(entries, ", ") + "}"
}

func (m *mapExpr) prec() int { return precAtom }

// tupleLiteral renders values per the language's tuple display rules: ()
// for arity 0, "(v,)" for arity 1, "v1, v2, ..." (unparenthesized, COMMA
// precedence) for arity >= 2 — callers needing parens around a 2+ tuple
// render it at a precedence below COMMA.
func tupleLiteral(values []expr) expr {
	switch len(values) {
	case 0:
		return newExpr("()", precAtom)
	case 1:
		return newExpr("("+values[0].renderAt(precComma)+",)", precAtom)
	default:
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = v.renderAt(precComma)
		}
		return newExpr(strings.Join(parts, ", "), precComma)
	}
}
