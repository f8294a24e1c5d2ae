package loader

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/mna/unspool/codeobject"
)

// marshal type tags, a scoped-down subset of CPython's marshal wire format
// covering exactly the value set the code object data model needs: None,
// Ellipsis, small integers, floats, strings (plain and interned), tuples,
// and nested code objects.
const (
	tagNone        = 'N'
	tagEllipsis    = '.'
	tagInt         = 'i'
	tagFloat       = 'f'
	tagString      = 's'
	tagInterned    = 't'
	tagStringRef   = 'R'
	tagTuple       = '('
	tagCode        = 'c'
)

// unmarshaler reads a single marshal stream. It keeps an interning table of
// every TYPE_INTERNED string seen so far, keyed by first-seen index, the
// same back-reference scheme CPython's own marshal format uses to avoid
// repeating common identifiers (attribute names, local names) across
// nested code objects in the same file. References are index-only, so a
// plain growing slice is the table; no reverse lookup is ever needed here.
type unmarshaler struct {
	r        io.Reader
	interned []string
}

func newUnmarshaler(r io.Reader) *unmarshaler {
	return &unmarshaler{r: r}
}

func (u *unmarshaler) readByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(u.r, b[:]); err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}
	return b[0], nil
}

func (u *unmarshaler) readInt32() (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(u.r, b[:]); err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

func (u *unmarshaler) readBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("marshal: negative length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(u.r, b); err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return b, nil
}

// readObject reads one marshalled value, dispatching on its leading type
// tag. It returns codeobject's canonical Go representation for that value:
// nil, codeobject.Ellipsis{}, int64, float64, string, codeobject.Tuple, or
// *codeobject.Code.
func (u *unmarshaler) readObject() (interface{}, error) {
	tag, err := u.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNone:
		return nil, nil
	case tagEllipsis:
		return codeobject.Ellipsis{}, nil
	case tagInt:
		n, err := u.readInt32()
		if err != nil {
			return nil, err
		}
		return int64(n), nil
	case tagFloat:
		n, err := u.readByte()
		if err != nil {
			return nil, err
		}
		raw, err := u.readBytes(int(n))
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("marshal: invalid float literal %q: %w", raw, err)
		}
		return f, nil
	case tagString, tagInterned:
		n, err := u.readInt32()
		if err != nil {
			return nil, err
		}
		raw, err := u.readBytes(int(n))
		if err != nil {
			return nil, err
		}
		s := string(raw)
		if tag == tagInterned {
			u.interned = append(u.interned, s)
		}
		return s, nil
	case tagStringRef:
		idx, err := u.readInt32()
		if err != nil {
			return nil, err
		}
		if int(idx) < 0 || int(idx) >= len(u.interned) {
			return nil, fmt.Errorf("marshal: invalid string reference %d", idx)
		}
		return u.interned[idx], nil
	case tagTuple:
		n, err := u.readInt32()
		if err != nil {
			return nil, err
		}
		items := make(codeobject.Tuple, n)
		for i := range items {
			v, err := u.readObject()
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	case tagCode:
		return u.readCode()
	default:
		return nil, fmt.Errorf("marshal: unsupported type tag %q (0x%02x)", tag, tag)
	}
}

// readCode reads a code object's fields in the fixed order the marshal
// format lays them out in: argcount, nlocals, stacksize, flags, code,
// consts, names, varnames, filename, name, firstlineno, lnotab. nlocals and
// stacksize are consumed but not retained: nlocals is redundant with
// len(Locals), and stacksize has no use once the program is never executed.
func (u *unmarshaler) readCode() (*codeobject.Code, error) {
	argcount, err := u.readInt32()
	if err != nil {
		return nil, err
	}
	if _, err := u.readInt32(); err != nil { // nlocals
		return nil, err
	}
	if _, err := u.readInt32(); err != nil { // stacksize
		return nil, err
	}
	flags, err := u.readInt32()
	if err != nil {
		return nil, err
	}

	codeObj, err := u.readObject()
	if err != nil {
		return nil, err
	}
	codeBytes, ok := codeObj.(string)
	if !ok {
		return nil, fmt.Errorf("marshal: code field is not a string")
	}

	consts, err := u.readObject()
	if err != nil {
		return nil, err
	}
	constsTuple, _ := consts.(codeobject.Tuple)

	names, err := u.readTuple()
	if err != nil {
		return nil, fmt.Errorf("marshal: names: %w", err)
	}

	varnames, err := u.readTuple()
	if err != nil {
		return nil, fmt.Errorf("marshal: varnames: %w", err)
	}

	if _, err := u.readObject(); err != nil { // filename
		return nil, err
	}

	nameObj, err := u.readObject()
	if err != nil {
		return nil, err
	}
	name, _ := nameObj.(string)

	firstline, err := u.readInt32()
	if err != nil {
		return nil, err
	}

	lnotabObj, err := u.readObject()
	if err != nil {
		return nil, err
	}
	lnotab, _ := lnotabObj.(string)

	return &codeobject.Code{
		Instructions: []byte(codeBytes),
		Constants:    []interface{}(constsTuple),
		Locals:       varnames,
		Names:        names,
		Argcount:     int(argcount),
		Flags:        int(flags),
		Name:         name,
		FirstLine:    int(firstline),
		LineTable:    []byte(lnotab),
	}, nil
}

// readTuple reads a marshalled tuple expected to contain only strings
// (names/varnames tables).
func (u *unmarshaler) readTuple() ([]string, error) {
	v, err := u.readObject()
	if err != nil {
		return nil, err
	}
	tup, ok := v.(codeobject.Tuple)
	if !ok {
		return nil, fmt.Errorf("expected tuple, got %T", v)
	}
	out := make([]string, len(tup))
	for i, item := range tup {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected string element, got %T", item)
		}
		out[i] = s
	}
	return out, nil
}
