package codec

import (
	"reflect"

	"github.com/chaisql/databind/bind"
	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

// store sets dst to a value returned by a problem handler.
func store(ctx *bind.Context, dst reflect.Value, v any) error {
	if !types.Assign(dst, v) {
		return ctx.ReportInputMismatch(dst.Type(), "cannot assign value of type %T to %s", v, types.ShortName(dst.Type()))
	}
	return nil
}

// unexpected lets the problem handlers deal with a token that cannot
// start a value of the type of dst.
func unexpected(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	v, err := ctx.HandleUnexpectedToken(dst.Type(), cur.CurrentToken(), cur, "")
	if err != nil {
		return err
	}
	return store(ctx, dst, v)
}

// wrap turns errors that are not binding errors into errors.MappingError,
// when WrapErrors is enabled.
func wrap(ctx *bind.Context, cur token.Cursor, err error) error {
	if !ctx.Enabled(bind.WrapErrors) {
		return err
	}
	var loc *token.Location
	if cur != nil {
		l := cur.CurrentLocation()
		loc = &l
	}
	return errs.Wrap(err, loc)
}

// next advances to the next value of the current object or array,
// reporting an unexpected end of input.
func next(ctx *bind.Context, cur token.Cursor, t reflect.Type) (token.Token, error) {
	tok, err := cur.NextValue()
	if err != nil {
		return tok, err
	}
	if tok == token.None {
		_, err := ctx.HandleUnexpectedToken(t, token.None, cur, "")
		if err == nil {
			err = ctx.ReportInputMismatch(t, "Unexpected end-of-input when binding data into %s", types.ShortName(t))
		}
		return tok, err
	}
	return tok, nil
}
