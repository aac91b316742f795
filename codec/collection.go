package codec

import (
	"reflect"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/bind/identity"
	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

// SingleAsArrayFormat is the format of collection properties accepting a
// single value in place of an array.
const SingleAsArrayFormat = "single-as-array"

// sliceDecoder reads arrays into slices. Elements that are references to
// objects not read yet are kept in place until the objects are bound.
type sliceDecoder struct {
	t      *types.Descriptor
	elem   bind.Decoder
	single bool
}

func (d *sliceDecoder) Resolve(ctx *bind.Context) error {
	elem, err := ctx.FindDecoder(d.t.ContentType(), bind.SecondarySite(nil))
	if err != nil {
		return err
	}
	d.elem = elem
	return nil
}

func (d *sliceDecoder) CreateContextual(ctx *bind.Context, site bind.Site) (bind.Decoder, error) {
	switch f := site.Format(); f {
	case "":
		return d, nil
	case SingleAsArrayFormat:
		return &sliceDecoder{t: d.t, elem: d.elem, single: true}, nil
	}

	elem, err := ctx.FindDecoder(d.t.ContentType(), site)
	if err != nil {
		return nil, err
	}
	return &sliceDecoder{t: d.t, elem: elem, single: d.single}, nil
}

func (d *sliceDecoder) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	switch tok := cur.CurrentToken(); tok {
	case token.StartArray:
	case token.Null:
		dst.SetZero()
		return nil
	default:
		if d.single || ctx.Enabled(bind.AcceptSingleValueAsArray) {
			return d.decodeSingle(ctx, cur, dst)
		}
		return unexpected(ctx, cur, dst)
	}

	elemType := dst.Type().Elem()
	acc := identity.NewCollectionAccumulator(elemType, ctx.LeaseBuffer())

	// elements are decoded into cells that the slice copies. Cells updated
	// by a late reference are copied again.
	var (
		finished bool
		parent   func() error
	)
	storeCells := func(values []any) error {
		s := reflect.MakeSlice(dst.Type(), len(values), len(values))
		for i, v := range values {
			if cell, ok := v.(reflect.Value); ok {
				s.Index(i).Set(cell)
				continue
			}
			if !types.Assign(s.Index(i), v) {
				return ctx.ReportInputMismatch(elemType, "cannot assign value of type %T to element of %s", v, types.ShortName(dst.Type()))
			}
		}
		dst.Set(s)
		return nil
	}

	ctx.EnterCopyBack(func() error {
		if !finished {
			return nil
		}
		return storeCells(acc.Values())
	})
	err := d.decodeElements(ctx, cur, elemType, acc)
	retained := ctx.LeaveCopyBack()
	if err != nil {
		return err
	}

	err = acc.Finish(func(values []any) error {
		if err := storeCells(values); err != nil {
			return err
		}
		if finished && parent != nil {
			return parent()
		}
		return nil
	})
	finished = true
	switch {
	case acc.Pending():
		parent = ctx.CopyBack()
	case !retained:
		ctx.ReleaseBuffer(acc.Values())
	}
	return err
}

func (d *sliceDecoder) decodeElements(ctx *bind.Context, cur token.Cursor, elemType reflect.Type, acc *identity.CollectionAccumulator) error {
	for i := 0; ; i++ {
		tok, err := next(ctx, cur, d.t.Raw())
		if err != nil {
			return err
		}
		if tok == token.EndArray {
			return nil
		}

		ev := reflect.New(elemType).Elem()
		if err := d.elem.Decode(ctx, cur, ev); err != nil {
			if fr, ok := identity.AsForwardReference(err); ok {
				acc.HandleUnresolved(fr)
				continue
			}
			return errs.WithPath(wrap(ctx, cur, err), errs.IndexRef(d.t.Raw(), i))
		}
		acc.Add(ev)
	}
}

func (d *sliceDecoder) decodeSingle(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	s := reflect.MakeSlice(dst.Type(), 1, 1)
	if err := d.elem.Decode(ctx, cur, s.Index(0)); err != nil {
		if fr, ok := identity.AsForwardReference(err); ok {
			dst.Set(s)
			identity.NewFieldReferring(fr, s.Index(0))
			return nil
		}
		return errs.WithPath(wrap(ctx, cur, err), errs.IndexRef(d.t.Raw(), 0))
	}
	dst.Set(s)
	return nil
}

// arrayDecoder reads arrays into Go arrays, in place.
type arrayDecoder struct {
	t    *types.Descriptor
	elem bind.Decoder
}

func (d *arrayDecoder) Resolve(ctx *bind.Context) error {
	elem, err := ctx.FindDecoder(d.t.ContentType(), bind.SecondarySite(nil))
	if err != nil {
		return err
	}
	d.elem = elem
	return nil
}

func (d *arrayDecoder) CreateContextual(ctx *bind.Context, site bind.Site) (bind.Decoder, error) {
	if site.Format() == "" {
		return d, nil
	}
	elem, err := ctx.FindDecoder(d.t.ContentType(), site)
	if err != nil {
		return nil, err
	}
	return &arrayDecoder{t: d.t, elem: elem}, nil
}

func (d *arrayDecoder) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	switch cur.CurrentToken() {
	case token.StartArray:
	case token.Null:
		dst.SetZero()
		return nil
	default:
		return unexpected(ctx, cur, dst)
	}

	n := dst.Len()
	for i := 0; ; i++ {
		tok, err := next(ctx, cur, d.t.Raw())
		if err != nil {
			return err
		}
		if tok == token.EndArray {
			for ; i < n; i++ {
				dst.Index(i).SetZero()
			}
			return nil
		}
		if i >= n {
			return ctx.ReportInputMismatch(d.t.Raw(), "too many elements for array of length %d", n)
		}

		ev := dst.Index(i)
		if err := d.elem.Decode(ctx, cur, ev); err != nil {
			if fr, ok := identity.AsForwardReference(err); ok {
				identity.NewFieldReferring(fr, ev).Then(ctx.CopyBack())
				continue
			}
			return errs.WithPath(wrap(ctx, cur, err), errs.IndexRef(d.t.Raw(), i))
		}
	}
}

// sliceEncoder writes slices and arrays.
type sliceEncoder struct {
	t    *types.Descriptor
	elem bind.Encoder
}

func (e *sliceEncoder) Resolve(ctx *bind.Context) error {
	elem, err := ctx.FindEncoder(e.t.ContentType(), bind.SecondarySite(nil))
	if err != nil {
		return err
	}
	e.elem = elem
	return nil
}

func (e *sliceEncoder) CreateContextual(ctx *bind.Context, site bind.Site) (bind.Encoder, error) {
	if site.Format() == "" || site.Format() == SingleAsArrayFormat {
		return e, nil
	}
	elem, err := ctx.FindEncoder(e.t.ContentType(), site)
	if err != nil {
		return nil, err
	}
	return &sliceEncoder{t: e.t, elem: elem}, nil
}

func (e *sliceEncoder) IsEmpty(_ *bind.Context, v reflect.Value) bool {
	return v.Len() == 0
}

func (e *sliceEncoder) Encode(ctx *bind.Context, em token.Emitter, v reflect.Value) error {
	if v.Kind() == reflect.Slice && v.IsNil() {
		return em.WriteNull()
	}

	if err := em.WriteStartArray(); err != nil {
		return err
	}
	for i := 0; i < v.Len(); i++ {
		if err := e.elem.Encode(ctx, em, v.Index(i)); err != nil {
			return errs.WithPath(wrap(ctx, nil, err), errs.IndexRef(e.t.Raw(), i))
		}
	}
	return em.WriteEndArray()
}
