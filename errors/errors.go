// Package errors defines the errors returned when binding fails.
// Each error kind is a distinct type that callers match with errors.As.
package errors

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/chaisql/databind/token"
)

// MaxQuotedLength is the number of runes kept on each side of a long value
// quoted in an error message.
const MaxQuotedLength = 500

// PathRef is one step of the reference chain leading to the failing value:
// either a property of an object or an index in an array.
type PathRef struct {
	Owner reflect.Type
	Field string
	Index int
}

// FieldRef returns a reference to a named property of owner.
func FieldRef(owner reflect.Type, field string) PathRef {
	return PathRef{Owner: owner, Field: field, Index: -1}
}

// IndexRef returns a reference to an array element.
func IndexRef(owner reflect.Type, i int) PathRef {
	return PathRef{Owner: owner, Index: i}
}

func (r PathRef) String() string {
	var sb strings.Builder
	if r.Owner != nil {
		sb.WriteString(r.Owner.String())
	} else {
		sb.WriteString("UNKNOWN")
	}
	sb.WriteByte('[')
	if r.Index >= 0 {
		sb.WriteString(strconv.Itoa(r.Index))
	} else {
		sb.WriteString(strconv.Quote(r.Field))
	}
	sb.WriteByte(']')
	return sb.String()
}

// Problem holds what every binding error carries: a message, the position
// of the cursor when the error was raised and the reference chain.
type Problem struct {
	Msg      string
	Location *token.Location
	Path     []PathRef
	Cause    error
}

func (p *Problem) Error() string {
	var sb strings.Builder
	sb.WriteString(p.Msg)
	if p.Location != nil {
		sb.WriteString("\n at [")
		sb.WriteString(p.Location.String())
		sb.WriteByte(']')
	}
	if len(p.Path) > 0 {
		sb.WriteString(" (through reference chain: ")
		for i, r := range p.Path {
			if i > 0 {
				sb.WriteString("->")
			}
			sb.WriteString(r.String())
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

func (p *Problem) Unwrap() error { return p.Cause }

func (p *Problem) problem() *Problem { return p }

type pathed interface {
	error
	problem() *Problem
}

// WithPath prepends r to the reference chain of the binding error
// found in err, if any, and returns err.
func WithPath(err error, r PathRef) error {
	if err == nil {
		return nil
	}
	var p pathed
	if errors.As(err, &p) {
		pb := p.problem()
		pb.Path = append([]PathRef{r}, pb.Path...)
	}
	return err
}

// PathOf returns the reference chain of the binding error found in err.
func PathOf(err error) []PathRef {
	var p pathed
	if !errors.As(err, &p) {
		return nil
	}
	return p.problem().Path
}

// DefinitionError is returned when a type or a property cannot be bound
// because of how it is declared. It never depends on the input.
type DefinitionError struct {
	Problem
	Type     reflect.Type
	Property string
}

// InputMismatchError is returned when the input does not fit the target type.
type InputMismatchError struct {
	Problem
	Type reflect.Type
}

// InvalidFormatError is an input mismatch caused by a scalar value
// that cannot be converted.
type InvalidFormatError struct {
	Problem
	Type  reflect.Type
	Value any
}

// InvalidTypeIDError is returned when a type discriminator cannot be
// resolved to a subtype of the base type.
type InvalidTypeIDError struct {
	Problem
	BaseType reflect.Type
	TypeID   string
}

// MissingTypeIDError is returned when a polymorphic value carries no
// type discriminator.
type MissingTypeIDError struct {
	Problem
	BaseType reflect.Type
}

// UnresolvedID describes an object identity that was referenced but never defined.
type UnresolvedID struct {
	ID       any
	Type     reflect.Type
	Location *token.Location
}

// UnresolvedReferenceError lists every object identity left unresolved
// at the end of a decoding operation.
type UnresolvedReferenceError struct {
	Problem
	Unresolved []UnresolvedID
}

// UnrecognizedPropertyError is returned when the input contains a property
// the target type does not know.
type UnrecognizedPropertyError struct {
	Problem
	Owner    reflect.Type
	Property string
	Known    []string
}

// MappingError wraps an error that is not a binding error, such as one
// returned by a custom converter, so that it carries a reference chain.
type MappingError struct {
	Problem
}

// Wrap returns err as a MappingError, unless it already is a binding error.
func Wrap(err error, loc *token.Location) error {
	if err == nil {
		return nil
	}
	var p pathed
	if errors.As(err, &p) {
		return err
	}
	return &MappingError{Problem: Problem{Msg: err.Error(), Location: loc, Cause: err}}
}

func IsDefinitionError(err error) bool {
	var e *DefinitionError
	return errors.As(err, &e)
}

func IsInputMismatchError(err error) bool {
	var e *InputMismatchError
	if errors.As(err, &e) {
		return true
	}
	var f *InvalidFormatError
	return errors.As(err, &f)
}

func IsInvalidTypeIDError(err error) bool {
	var e *InvalidTypeIDError
	return errors.As(err, &e)
}

func IsMissingTypeIDError(err error) bool {
	var e *MissingTypeIDError
	return errors.As(err, &e)
}

func IsUnresolvedReferenceError(err error) bool {
	var e *UnresolvedReferenceError
	return errors.As(err, &e)
}

func IsUnrecognizedPropertyError(err error) bool {
	var e *UnrecognizedPropertyError
	return errors.As(err, &e)
}

// Truncate shortens s to its first and last MaxQuotedLength runes.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxQuotedLength {
		return s
	}
	return string(r[:MaxQuotedLength]) + "]...[" + string(r[len(r)-MaxQuotedLength:])
}

// Quote returns s truncated and quoted, for use in error messages.
func Quote(s string) string {
	return `"` + Truncate(s) + `"`
}
