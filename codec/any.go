package codec

import (
	"reflect"

	"github.com/chaisql/databind/bind"
	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// anyDecoder reads untyped values: objects become map[string]any,
// arrays []any, integral numbers int64 and other numbers float64.
type anyDecoder struct{}

func (d anyDecoder) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	v, err := d.read(ctx, cur)
	if err != nil {
		return err
	}
	return store(ctx, dst, v)
}

func (d anyDecoder) read(ctx *bind.Context, cur token.Cursor) (any, error) {
	switch tok := cur.CurrentToken(); tok {
	case token.Null:
		return nil, nil
	case token.True:
		return true, nil
	case token.False:
		return false, nil
	case token.String:
		return cur.Text(), nil
	case token.Number:
		if n, err := cur.Int(); err == nil {
			return n, nil
		}
		f, err := cur.Float()
		if err != nil {
			return ctx.HandleWeirdNumberValue(anyType, cur.Text(), "not a valid number")
		}
		return f, nil
	case token.StartArray:
		var arr []any
		for i := 0; ; i++ {
			tok, err := next(ctx, cur, anyType)
			if err != nil {
				return nil, err
			}
			if tok == token.EndArray {
				if arr == nil {
					arr = []any{}
				}
				return arr, nil
			}
			v, err := d.read(ctx, cur)
			if err != nil {
				return nil, errs.WithPath(err, errs.IndexRef(anyType, i))
			}
			arr = append(arr, v)
		}
	case token.StartObject:
		m := make(map[string]any)
		for {
			tok, err := next(ctx, cur, anyType)
			if err != nil {
				return nil, err
			}
			if tok == token.EndObject {
				return m, nil
			}
			name := cur.FieldName()
			v, err := d.read(ctx, cur)
			if err != nil {
				return nil, errs.WithPath(err, errs.FieldRef(anyType, name))
			}
			m[name] = v
		}
	default:
		return ctx.HandleUnexpectedToken(anyType, tok, cur, "")
	}
}

// anyEncoder writes untyped values with the encoder of their dynamic type.
type anyEncoder struct{}

func (anyEncoder) Encode(ctx *bind.Context, em token.Emitter, v reflect.Value) error {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return em.WriteNull()
		}
		v = v.Elem()
	}
	enc, err := ctx.FindEncoder(types.Of(v.Type()), bind.SecondarySite(nil))
	if err != nil {
		return err
	}
	return enc.Encode(ctx, em, v)
}

func (anyEncoder) IsEmpty(ctx *bind.Context, v reflect.Value) bool {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return true
		}
		v = v.Elem()
	}
	enc, err := ctx.FindEncoder(types.Of(v.Type()), bind.SecondarySite(nil))
	if err != nil {
		return false
	}
	if em, ok := enc.(bind.Emptiable); ok {
		return em.IsEmpty(ctx, v)
	}
	return false
}
