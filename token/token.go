// Package token defines the contracts between the binding core and the
// streaming reader and writer of a hierarchical token format.
package token

import (
	"strconv"
)

// Token is the kind of the current element of a token stream.
type Token uint8

// List of tokens.
const (
	None Token = iota
	StartObject
	EndObject
	StartArray
	EndArray
	FieldName
	String
	Number
	True
	False
	Null
)

func (t Token) String() string {
	switch t {
	case None:
		return "none"
	case StartObject:
		return "start object"
	case EndObject:
		return "end object"
	case StartArray:
		return "start array"
	case EndArray:
		return "end array"
	case FieldName:
		return "field name"
	case String:
		return "string"
	case Number:
		return "number"
	case True:
		return "true"
	case False:
		return "false"
	case Null:
		return "null"
	}

	panic("unknown token " + strconv.Itoa(int(t)))
}

// IsScalar reports whether t is a scalar value.
func (t Token) IsScalar() bool {
	switch t {
	case String, Number, True, False, Null:
		return true
	}
	return false
}

// IsStructStart reports whether t opens an object or an array.
func (t Token) IsStructStart() bool {
	return t == StartObject || t == StartArray
}

// Location is a position in the input.
type Location struct {
	Offset int
	Line   int
	Column int
}

func (l Location) String() string {
	return "line: " + strconv.Itoa(l.Line) + ", column: " + strconv.Itoa(l.Column)
}

// A Cursor iterates over a token stream. The binding core never owns the
// lifecycle of the underlying stream.
type Cursor interface {
	// CurrentToken returns the token the cursor is positioned on,
	// or None before the first call to NextValue or at the end of the stream.
	CurrentToken() Token
	// CurrentLocation returns the position of the current token.
	CurrentLocation() Location
	// NextValue advances to the next value token, skipping over field names.
	// The name of the field preceding the value is returned by FieldName.
	NextValue() (Token, error)
	// NextToken advances to the next token.
	NextToken() (Token, error)
	// SkipChildren skips the content of the object or array the cursor
	// is positioned on, leaving it on the matching end token.
	// It is a no-op on other tokens.
	SkipChildren() error
	// FieldName returns the name of the current field, when positioned on a
	// field name or on the value following it.
	FieldName() string
	// Text returns the textual form of the current scalar token.
	Text() string
	// Int returns the current number as an int64.
	Int() (int64, error)
	// Uint returns the current number as a uint64.
	Uint() (uint64, error)
	// Float returns the current number as a float64.
	Float() (float64, error)
}

// A Replayer is a Cursor that can rewind to a previously marked position.
type Replayer interface {
	Cursor

	// Mark returns an opaque handle on the current position.
	Mark() int
	// Reset moves the cursor back to a marked position.
	Reset(mark int)
}

// An Emitter writes a token stream. The binding core never owns the
// lifecycle of the underlying stream.
type Emitter interface {
	WriteStartObject() error
	WriteEndObject() error
	WriteStartArray() error
	WriteEndArray() error
	WriteFieldName(name string) error
	WriteNull() error
	// WriteValue writes a scalar: string, bool, any integer or float kind.
	WriteValue(v any) error
	// CanOmitFields reports whether the format allows fields to be
	// left out of an object.
	CanOmitFields() bool
}
