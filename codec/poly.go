package codec

import (
	"reflect"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

// interfaceDecoder reads values of interface types along with their type id.
// Objects carry the id as a property, other values are wrapped in a two
// element array: ["id", value].
type interfaceDecoder struct {
	base *types.Descriptor
}

func (d *interfaceDecoder) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	switch tok := cur.CurrentToken(); tok {
	case token.Null:
		dst.SetZero()
		return nil
	case token.StartObject:
		if r, ok := cur.(token.Replayer); ok {
			return d.decodeProperty(ctx, r, dst)
		}
		return d.decodeLeadingProperty(ctx, cur, dst)
	case token.StartArray:
		return d.decodeWrapped(ctx, cur, dst)
	default:
		t, err := ctx.HandleMissingTypeID(d.base, "")
		if err != nil {
			return err
		}
		if t == nil {
			dst.SetZero()
			return nil
		}
		return d.decodeAs(ctx, cur, dst, t)
	}
}

// decodeProperty looks the type id up anywhere in the object, then reads
// the object again with the decoder of the type.
func (d *interfaceDecoder) decodeProperty(ctx *bind.Context, cur token.Replayer, dst reflect.Value) error {
	prop := ctx.Config().TypeProperty()
	mark := cur.Mark()

	var id string
	found := false
	for !found {
		tok, err := next(ctx, cur, d.base.Raw())
		if err != nil {
			return err
		}
		if tok == token.EndObject {
			break
		}
		if tok == token.String && cur.FieldName() == prop {
			id, found = cur.Text(), true
			break
		}
		if err := cur.SkipChildren(); err != nil {
			return err
		}
	}
	cur.Reset(mark)

	t, err := d.resolve(ctx, id, found)
	if err != nil {
		return err
	}
	if t == nil {
		dst.SetZero()
		return cur.SkipChildren()
	}
	return d.decodeAs(ctx, cur, dst, t)
}

// decodeLeadingProperty reads objects from cursors that cannot rewind.
// The type id has to be the first property.
func (d *interfaceDecoder) decodeLeadingProperty(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	prop := ctx.Config().TypeProperty()

	tok, err := next(ctx, cur, d.base.Raw())
	if err != nil {
		return err
	}
	if tok == token.EndObject {
		t, err := d.resolve(ctx, "", false)
		if err != nil || t == nil {
			dst.SetZero()
			return err
		}
		// the object is over, the subtype gets no property
		return d.into(ctx, dst, t, func(dec bind.Decoder, v reflect.Value) error {
			if b, ok := dec.(*beanDecoder); ok {
				return b.decodeFields(ctx, cur, v, "")
			}
			return ctx.ReportInputMismatch(t.Raw(), "cannot decode %s from an empty object", types.ShortName(t.Raw()))
		})
	}

	if tok != token.String || cur.FieldName() != prop {
		return ctx.ReportInputMismatch(d.base.Raw(),
			"type id property %q must come first when the input cannot be read twice", prop)
	}

	t, err := d.resolve(ctx, cur.Text(), true)
	if err != nil {
		return err
	}
	if t == nil {
		dst.SetZero()
		return skipRest(ctx, cur, d.base.Raw())
	}
	id := cur.Text()
	return d.into(ctx, dst, t, func(dec bind.Decoder, v reflect.Value) error {
		b, ok := dec.(*beanDecoder)
		if !ok {
			return ctx.ReportBadTypeDefinition(t.Raw(), "cannot decode %s from an object with a type id property", types.ShortName(t.Raw()))
		}
		return b.decodeFields(ctx, cur, v, id)
	})
}

// decodeWrapped reads ["id", value].
func (d *interfaceDecoder) decodeWrapped(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	raw := d.base.Raw()

	tok, err := next(ctx, cur, raw)
	if err != nil {
		return err
	}
	if tok != token.String {
		v, err := ctx.HandleUnexpectedToken(raw, tok, cur,
			"need String token to contain type id (for subtype of "+types.ShortName(raw)+")")
		if err != nil {
			return err
		}
		// the recovered value stands for the whole wrapper
		if err := store(ctx, dst, v); err != nil {
			return err
		}
		if tok == token.EndArray {
			return nil
		}
		if err := cur.SkipChildren(); err != nil {
			return err
		}
		return skipTo(ctx, cur, raw, token.EndArray)
	}

	t, err := d.resolve(ctx, cur.Text(), true)
	if err != nil {
		return err
	}

	if _, err := next(ctx, cur, raw); err != nil {
		return err
	}
	if t == nil {
		dst.SetZero()
		if err := cur.SkipChildren(); err != nil {
			return err
		}
	} else if err := d.decodeAs(ctx, cur, dst, t); err != nil {
		return err
	}

	tok, err = cur.NextToken()
	if err != nil {
		return err
	}
	if tok != token.EndArray {
		return ctx.ReportInputMismatch(raw,
			"expected closing EndArray after type information and deserialized value, got %s", tok)
	}
	return nil
}

// resolve returns the type designated by id, or by the problem handlers
// when there is no id.
func (d *interfaceDecoder) resolve(ctx *bind.Context, id string, found bool) (*types.Descriptor, error) {
	if !found {
		return ctx.HandleMissingTypeID(d.base, "missing type id property '"+ctx.Config().TypeProperty()+"'")
	}
	return ctx.TypeFromID(d.base, id)
}

func (d *interfaceDecoder) decodeAs(ctx *bind.Context, cur token.Cursor, dst reflect.Value, t *types.Descriptor) error {
	return d.into(ctx, dst, t, func(dec bind.Decoder, v reflect.Value) error {
		return dec.Decode(ctx, cur, v)
	})
}

// into decodes a value of type t and stores it into dst. Types whose
// methods have pointer receivers are allocated and stored as pointers.
func (d *interfaceDecoder) into(ctx *bind.Context, dst reflect.Value, t *types.Descriptor, decode func(dec bind.Decoder, v reflect.Value) error) error {
	raw := t.Raw()
	if raw.Kind() == reflect.Pointer && reflect.PointerTo(raw.Elem()).AssignableTo(dst.Type()) {
		t = t.ContentType()
		raw = raw.Elem()
	}
	dec, err := ctx.FindDecoder(t, bind.SecondarySite(nil))
	if err != nil {
		return err
	}

	switch {
	case raw.AssignableTo(dst.Type()):
		v := reflect.New(raw).Elem()
		ctx.EnterCopyBack(func() error {
			dst.Set(v)
			return nil
		})
		err := decode(dec, v)
		ctx.LeaveCopyBack()
		if err != nil {
			return err
		}
		dst.Set(v)
	case reflect.PointerTo(raw).AssignableTo(dst.Type()):
		p := reflect.New(raw)
		if err := decode(dec, p.Elem()); err != nil {
			return err
		}
		dst.Set(p)
	default:
		return ctx.ReportBadTypeDefinition(raw, "%s cannot be stored as %s", types.ShortName(raw), types.ShortName(dst.Type()))
	}
	return nil
}

// skipRest skips the remaining properties of the current object.
func skipRest(ctx *bind.Context, cur token.Cursor, t reflect.Type) error {
	return skipTo(ctx, cur, t, token.EndObject)
}

// skipTo skips the values left in the current object or array.
func skipTo(ctx *bind.Context, cur token.Cursor, t reflect.Type, end token.Token) error {
	for {
		tok, err := next(ctx, cur, t)
		if err != nil {
			return err
		}
		if tok == end {
			return nil
		}
		if err := cur.SkipChildren(); err != nil {
			return err
		}
	}
}

// interfaceEncoder writes values of interface types along with their type id.
type interfaceEncoder struct {
	base *types.Descriptor
}

func (e *interfaceEncoder) Encode(ctx *bind.Context, em token.Emitter, v reflect.Value) error {
	return ctx.NewTypeWriter(e.base).Write(ctx, em, v)
}

func (e *interfaceEncoder) IsEmpty(_ *bind.Context, v reflect.Value) bool {
	return v.IsNil()
}
