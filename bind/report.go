package bind

import (
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"

	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

// location returns the position of the cursor, if one is bound.
func (c *Context) location() *token.Location {
	if c.cursor == nil {
		return nil
	}
	loc := c.cursor.CurrentLocation()
	return &loc
}

func (c *Context) problem(msg string, cause error) errs.Problem {
	return errs.Problem{Msg: msg, Location: c.location(), Cause: cause}
}

func msgf(format string, args []any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// ReportInputMismatch returns an InputMismatchError for a value of type t
// that does not fit the input.
func (c *Context) ReportInputMismatch(t reflect.Type, format string, args ...any) error {
	return &errs.InputMismatchError{Problem: c.problem(msgf(format, args), nil), Type: t}
}

// ReportBadDefinition returns a DefinitionError about t.
func (c *Context) ReportBadDefinition(t reflect.Type, msg string) error {
	return &errs.DefinitionError{Problem: c.problem(msg, nil), Type: t}
}

// ReportBadTypeDefinition returns a DefinitionError about the declaration of t.
func (c *Context) ReportBadTypeDefinition(t reflect.Type, format string, args ...any) error {
	msg := fmt.Sprintf("Invalid type definition for type %s: %s", types.ShortName(t), msgf(format, args))
	return &errs.DefinitionError{Problem: c.problem(msg, nil), Type: t}
}

// ReportBadPropertyDefinition returns a DefinitionError about the property
// prop of owner.
func (c *Context) ReportBadPropertyDefinition(owner reflect.Type, prop string, format string, args ...any) error {
	msg := fmt.Sprintf("Invalid definition for property %q (of type %s): %s", prop, types.ShortName(owner), msgf(format, args))
	return &errs.DefinitionError{Problem: c.problem(msg, nil), Type: owner, Property: prop}
}

// PropertyDefinitionFailure turns an error raised while building the
// converter of the property prop of owner into a DefinitionError naming it.
// Errors already naming a property are returned as is.
func (c *Context) PropertyDefinitionFailure(owner reflect.Type, prop string, err error) error {
	if errs.IsInputMismatchError(err) {
		return err
	}
	var de *errs.DefinitionError
	if errors.As(err, &de) && de.Property != "" {
		return err
	}
	msg := fmt.Sprintf("Invalid definition for property %q (of type %s): %s", prop, types.ShortName(owner), err)
	return &errs.DefinitionError{Problem: c.problem(msg, err), Type: owner, Property: prop}
}

// definitionFailure turns an error returned by a converter factory into a
// DefinitionError, unless it already is a binding error.
func (c *Context) definitionFailure(t *types.Descriptor, what string, err error) error {
	if errs.IsDefinitionError(err) || errs.IsInputMismatchError(err) {
		return err
	}
	msg := fmt.Sprintf("Cannot construct %s for type %s: %s", what, types.ShortName(t.Raw()), err)
	return &errs.DefinitionError{Problem: c.problem(msg, err), Type: t.Raw()}
}

func (c *Context) weirdStringError(t reflect.Type, value, msg string) error {
	m := fmt.Sprintf("Cannot deserialize value of type %s from String %s: %s", types.ShortName(t), errs.Quote(value), msg)
	return &errs.InvalidFormatError{Problem: c.problem(m, nil), Type: t, Value: value}
}

func (c *Context) weirdNumberError(t reflect.Type, value any, msg string) error {
	m := fmt.Sprintf("Cannot deserialize value of type %s from number %v: %s", types.ShortName(t), value, msg)
	return &errs.InvalidFormatError{Problem: c.problem(m, nil), Type: t, Value: value}
}

func (c *Context) weirdKeyError(t reflect.Type, key, msg string) error {
	m := fmt.Sprintf("Cannot deserialize map key of type %s from String %s: %s", types.ShortName(t), errs.Quote(key), msg)
	return &errs.InvalidFormatError{Problem: c.problem(m, nil), Type: t, Value: key}
}

func (c *Context) invalidTypeIDError(base *types.Descriptor, id, extra string) error {
	msg := fmt.Sprintf("Could not resolve type id %s as a subtype of %s", errs.Quote(id), types.ShortName(base.Raw()))
	if extra != "" {
		msg += ": " + extra
	}
	return &errs.InvalidTypeIDError{Problem: c.problem(msg, nil), BaseType: base.Raw(), TypeID: id}
}

func (c *Context) missingTypeIDError(base *types.Descriptor, extra string) error {
	msg := fmt.Sprintf("Missing type id when trying to resolve subtype of %s", types.ShortName(base.Raw()))
	if extra != "" {
		msg += ": " + extra
	}
	return &errs.MissingTypeIDError{Problem: c.problem(msg, nil), BaseType: base.Raw()}
}
