package codec

import (
	"reflect"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

// pointerDecoder allocates the pointed to value and decodes into it.
// Scalars read into pointers to types with an object identity are
// references to objects decoded elsewhere.
type pointerDecoder struct {
	t    *types.Descriptor
	elem bind.Decoder
}

func (d *pointerDecoder) Resolve(ctx *bind.Context) error {
	elem, err := ctx.FindDecoder(d.t.ContentType(), bind.SecondarySite(nil))
	if err != nil {
		return err
	}
	d.elem = elem
	return nil
}

func (d *pointerDecoder) CreateContextual(ctx *bind.Context, site bind.Site) (bind.Decoder, error) {
	if site.Format() == "" {
		return d, nil
	}
	elem, err := ctx.FindDecoder(d.t.ContentType(), site)
	if err != nil {
		return nil, err
	}
	return &pointerDecoder{t: d.t, elem: elem}, nil
}

func (d *pointerDecoder) UsesObjectIdentity() bool {
	rr, ok := d.elem.(bind.ReferenceReader)
	return ok && rr.UsesObjectIdentity()
}

func (d *pointerDecoder) ReadReference(ctx *bind.Context, cur token.Cursor) (any, error) {
	return d.elem.(bind.ReferenceReader).ReadReference(ctx, cur)
}

// referenceReader returns the decoder of the pointed to type if it reads
// object ids. The decoder is looked up again when the pointer was built
// while the pointed to type was in progress.
func (d *pointerDecoder) referenceReader(ctx *bind.Context) (bind.ReferenceReader, bool) {
	dec := d.elem
	if _, ok := dec.(bind.ReferenceReader); !ok && d.t.ContentType().Kind() == reflect.Struct {
		found, err := ctx.FindDecoder(d.t.ContentType(), bind.SecondarySite(nil))
		if err != nil {
			return nil, false
		}
		dec = found
	}
	rr, ok := dec.(bind.ReferenceReader)
	if !ok || !rr.UsesObjectIdentity() {
		return nil, false
	}
	return rr, true
}

func (d *pointerDecoder) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	tok := cur.CurrentToken()
	if tok == token.Null {
		dst.SetZero()
		return nil
	}

	if tok.IsScalar() {
		if rr, ok := d.referenceReader(ctx); ok {
			item, err := rr.ReadReference(ctx, cur)
			if err != nil {
				return err
			}
			return store(ctx, dst, item)
		}
	}

	p := dst
	if dst.IsNil() {
		p = reflect.New(dst.Type().Elem())
		dst.Set(p)
	}
	return d.elem.Decode(ctx, cur, p.Elem())
}

type pointerEncoder struct {
	t    *types.Descriptor
	elem bind.Encoder
}

func (e *pointerEncoder) Resolve(ctx *bind.Context) error {
	elem, err := ctx.FindEncoder(e.t.ContentType(), bind.SecondarySite(nil))
	if err != nil {
		return err
	}
	e.elem = elem
	return nil
}

func (e *pointerEncoder) CreateContextual(ctx *bind.Context, site bind.Site) (bind.Encoder, error) {
	if site.Format() == "" {
		return e, nil
	}
	elem, err := ctx.FindEncoder(e.t.ContentType(), site)
	if err != nil {
		return nil, err
	}
	return &pointerEncoder{t: e.t, elem: elem}, nil
}

func (e *pointerEncoder) UsesObjectIdentity() bool {
	u, ok := e.elem.(bind.IdentityUser)
	return ok && u.UsesObjectIdentity()
}

func (e *pointerEncoder) IsEmpty(ctx *bind.Context, v reflect.Value) bool {
	if v.IsNil() {
		return true
	}
	if em, ok := e.elem.(bind.Emptiable); ok {
		return em.IsEmpty(ctx, v.Elem())
	}
	return false
}

func (e *pointerEncoder) Encode(ctx *bind.Context, em token.Emitter, v reflect.Value) error {
	if v.IsNil() {
		return em.WriteNull()
	}
	return e.elem.Encode(ctx, em, v.Elem())
}

// EncodeWithType writes the pointed to value with its type id.
func (e *pointerEncoder) EncodeWithType(ctx *bind.Context, em token.Emitter, v reflect.Value, tw *bind.TypeWriter) error {
	if v.IsNil() {
		return em.WriteNull()
	}
	elem := e.elem
	if _, ok := elem.(bind.TypedEncoder); !ok {
		found, err := ctx.FindEncoder(e.t.ContentType(), bind.SecondarySite(nil))
		if err != nil {
			return err
		}
		elem = found
	}
	if te, ok := elem.(bind.TypedEncoder); ok {
		return te.EncodeWithType(ctx, em, v.Elem(), tw)
	}

	id, err := ctx.TypeID(v.Type())
	if err != nil {
		return err
	}
	if err := em.WriteStartArray(); err != nil {
		return err
	}
	if err := em.WriteValue(id); err != nil {
		return err
	}
	if err := elem.Encode(ctx, em, v.Elem()); err != nil {
		return err
	}
	return em.WriteEndArray()
}
