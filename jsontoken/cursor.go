// Package jsontoken implements the token contracts over JSON documents.
package jsontoken

import (
	"bytes"
	"sort"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/cockroachdb/errors"

	"github.com/chaisql/databind/token"
)

type entry struct {
	tok  token.Token
	name string
	raw  []byte
	off  int
	// index of the matching end token, for object and array starts.
	end int
}

// Cursor is a token.Cursor over a JSON document.
// The whole document is tokenized upfront, which lets the cursor
// rewind to any marked position.
type Cursor struct {
	data    []byte
	entries []entry
	pos     int
	lines   []int
}

var _ token.Replayer = (*Cursor)(nil)

// NewCursor tokenizes data. It returns an error if data is not a single
// well formed JSON value.
func NewCursor(data []byte) (*Cursor, error) {
	c := Cursor{data: data, pos: -1}

	v, dt, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, errors.Wrap(err, "invalid json")
	}

	if err := c.walk(v, dt, ""); err != nil {
		return nil, err
	}

	end := c.offsetOf(v) + len(v)
	if dt == jsonparser.String {
		end++
	}
	if end < len(data) && len(bytes.TrimSpace(data[end:])) > 0 {
		return nil, errors.Errorf("invalid json: trailing token at offset %d", end)
	}

	return &c, nil
}

func (c *Cursor) offsetOf(v []byte) int {
	// every value returned by jsonparser shares the backing array of data.
	return cap(c.data) - cap(v)
}

func (c *Cursor) walk(value []byte, dt jsonparser.ValueType, name string) error {
	off := c.offsetOf(value)
	if dt == jsonparser.String {
		off--
	}

	switch dt {
	case jsonparser.Object:
		start := len(c.entries)
		c.entries = append(c.entries, entry{tok: token.StartObject, name: name, off: off})
		err := jsonparser.ObjectEach(value, func(key []byte, v []byte, vt jsonparser.ValueType, _ int) error {
			k := string(key)
			koff := c.offsetOf(v)
			c.entries = append(c.entries, entry{tok: token.FieldName, name: k, off: koff})
			return c.walk(v, vt, k)
		})
		if err != nil {
			return errors.Wrapf(err, "invalid json object at offset %d", off)
		}
		c.entries[start].end = len(c.entries)
		c.entries = append(c.entries, entry{tok: token.EndObject, name: name, off: off + len(value) - 1})
	case jsonparser.Array:
		start := len(c.entries)
		c.entries = append(c.entries, entry{tok: token.StartArray, name: name, off: off})
		var werr error
		_, err := jsonparser.ArrayEach(value, func(v []byte, vt jsonparser.ValueType, _ int, err error) {
			if werr != nil {
				return
			}
			if err != nil {
				werr = err
				return
			}
			werr = c.walk(v, vt, "")
		})
		if err == nil {
			err = werr
		}
		if err != nil {
			return errors.Wrapf(err, "invalid json array at offset %d", off)
		}
		c.entries[start].end = len(c.entries)
		c.entries = append(c.entries, entry{tok: token.EndArray, name: name, off: off + len(value) - 1})
	case jsonparser.String:
		c.entries = append(c.entries, entry{tok: token.String, name: name, raw: value, off: off})
	case jsonparser.Number:
		c.entries = append(c.entries, entry{tok: token.Number, name: name, raw: value, off: off})
	case jsonparser.Boolean:
		tok := token.False
		if value[0] == 't' {
			tok = token.True
		}
		c.entries = append(c.entries, entry{tok: tok, name: name, off: off})
	case jsonparser.Null:
		c.entries = append(c.entries, entry{tok: token.Null, name: name, off: off})
	default:
		return errors.Errorf("invalid json value at offset %d", off)
	}

	return nil
}

func (c *Cursor) current() *entry {
	if c.pos < 0 || c.pos >= len(c.entries) {
		return nil
	}
	return &c.entries[c.pos]
}

// CurrentToken implements the token.Cursor interface.
func (c *Cursor) CurrentToken() token.Token {
	if e := c.current(); e != nil {
		return e.tok
	}
	return token.None
}

// CurrentLocation implements the token.Cursor interface.
func (c *Cursor) CurrentLocation() token.Location {
	off := len(c.data)
	if e := c.current(); e != nil {
		off = e.off
	} else if c.pos < 0 {
		off = 0
	}

	if c.lines == nil {
		c.lines = []int{0}
		for i, b := range c.data {
			if b == '\n' {
				c.lines = append(c.lines, i+1)
			}
		}
	}

	line := sort.Search(len(c.lines), func(i int) bool { return c.lines[i] > off }) - 1
	return token.Location{
		Offset: off,
		Line:   line + 1,
		Column: off - c.lines[line] + 1,
	}
}

// NextToken implements the token.Cursor interface.
func (c *Cursor) NextToken() (token.Token, error) {
	if c.pos < len(c.entries) {
		c.pos++
	}
	return c.CurrentToken(), nil
}

// NextValue implements the token.Cursor interface.
func (c *Cursor) NextValue() (token.Token, error) {
	tok, err := c.NextToken()
	if err != nil || tok != token.FieldName {
		return tok, err
	}
	return c.NextToken()
}

// SkipChildren implements the token.Cursor interface.
func (c *Cursor) SkipChildren() error {
	if e := c.current(); e != nil && e.tok.IsStructStart() {
		c.pos = e.end
	}
	return nil
}

// FieldName implements the token.Cursor interface.
func (c *Cursor) FieldName() string {
	if e := c.current(); e != nil {
		return e.name
	}
	return ""
}

// Text implements the token.Cursor interface.
func (c *Cursor) Text() string {
	e := c.current()
	if e == nil {
		return ""
	}

	switch e.tok {
	case token.String:
		s, err := jsonparser.ParseString(e.raw)
		if err != nil {
			return string(e.raw)
		}
		return s
	case token.Number:
		return string(e.raw)
	case token.FieldName:
		return e.name
	}
	return e.tok.String()
}

func (c *Cursor) number() ([]byte, error) {
	e := c.current()
	if e == nil || e.tok != token.Number {
		return nil, errors.Errorf("current token is not a number")
	}
	return e.raw, nil
}

// Int implements the token.Cursor interface.
func (c *Cursor) Int() (int64, error) {
	raw, err := c.number()
	if err != nil {
		return 0, err
	}
	return jsonparser.ParseInt(raw)
}

// Uint implements the token.Cursor interface.
func (c *Cursor) Uint() (uint64, error) {
	raw, err := c.number()
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(raw), 10, 64)
}

// Float implements the token.Cursor interface.
func (c *Cursor) Float() (float64, error) {
	raw, err := c.number()
	if err != nil {
		return 0, err
	}
	return jsonparser.ParseFloat(raw)
}

// Mark implements the token.Replayer interface.
func (c *Cursor) Mark() int { return c.pos }

// Reset implements the token.Replayer interface.
func (c *Cursor) Reset(mark int) { c.pos = mark }
