package codec

import (
	"encoding"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/bind/identity"
	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

// keyDecoder converts field names into map keys.
type keyDecoder func(ctx *bind.Context, key string) (reflect.Value, error)

func newKeyDecoder(ctx *bind.Context, t reflect.Type) (keyDecoder, error) {
	weird := func(ctx *bind.Context, key, msg string) (reflect.Value, error) {
		v, err := ctx.HandleWeirdKey(t, key, msg)
		if err != nil {
			return reflect.Value{}, err
		}
		kv := reflect.New(t).Elem()
		if err := store(ctx, kv, v); err != nil {
			return reflect.Value{}, err
		}
		return kv, nil
	}

	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return func(ctx *bind.Context, key string) (reflect.Value, error) {
			p := reflect.New(t)
			if err := p.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(key)); err != nil {
				return weird(ctx, key, err.Error())
			}
			return p.Elem(), nil
		}, nil
	}

	switch t.Kind() {
	case reflect.String:
		return func(_ *bind.Context, key string) (reflect.Value, error) {
			return reflect.ValueOf(key).Convert(t), nil
		}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(ctx *bind.Context, key string) (reflect.Value, error) {
			n, err := strconv.ParseInt(key, 10, t.Bits())
			if err != nil {
				return weird(ctx, key, "not a valid representation")
			}
			return reflect.ValueOf(n).Convert(t), nil
		}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(ctx *bind.Context, key string) (reflect.Value, error) {
			n, err := strconv.ParseUint(key, 10, t.Bits())
			if err != nil {
				return weird(ctx, key, "not a valid representation")
			}
			return reflect.ValueOf(n).Convert(t), nil
		}, nil
	}

	return nil, ctx.ReportBadTypeDefinition(t, "cannot find a key deserializer for type %s", types.ShortName(t))
}

// mapDecoder reads objects into maps.
type mapDecoder struct {
	t    *types.Descriptor
	key  keyDecoder
	elem bind.Decoder
}

func (d *mapDecoder) Resolve(ctx *bind.Context) error {
	elem, err := ctx.FindDecoder(d.t.ContentType(), bind.SecondarySite(nil))
	if err != nil {
		return err
	}
	d.elem = elem
	return nil
}

func (d *mapDecoder) CreateContextual(ctx *bind.Context, site bind.Site) (bind.Decoder, error) {
	if site.Format() == "" {
		return d, nil
	}
	elem, err := ctx.FindDecoder(d.t.ContentType(), site)
	if err != nil {
		return nil, err
	}
	return &mapDecoder{t: d.t, key: d.key, elem: elem}, nil
}

func (d *mapDecoder) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	switch cur.CurrentToken() {
	case token.StartObject:
	case token.Null:
		dst.SetZero()
		return nil
	default:
		return unexpected(ctx, cur, dst)
	}

	raw := d.t.Raw()
	m := dst
	if m.IsNil() {
		m = reflect.MakeMap(dst.Type())
		dst.Set(m)
	}

	elemType := dst.Type().Elem()
	for {
		tok, err := next(ctx, cur, raw)
		if err != nil {
			return err
		}
		if tok == token.EndObject {
			return nil
		}

		name := cur.FieldName()
		key, err := d.key(ctx, name)
		if err != nil {
			return errs.WithPath(err, errs.FieldRef(raw, name))
		}

		ev := reflect.New(elemType).Elem()
		ctx.EnterCopyBack(func() error {
			m.SetMapIndex(key, ev)
			return nil
		})
		err = d.elem.Decode(ctx, cur, ev)
		ctx.LeaveCopyBack()
		if err != nil {
			if fr, ok := identity.AsForwardReference(err); ok {
				m.SetMapIndex(key, ev)
				identity.NewMapReferring(fr, m, key)
				continue
			}
			return errs.WithPath(wrap(ctx, cur, err), errs.FieldRef(raw, name))
		}
		m.SetMapIndex(key, ev)
	}
}

// checkKeyType reports an error if values of t cannot be written as
// field names.
func checkKeyType(ctx *bind.Context, t reflect.Type) error {
	if t.Implements(textMarshalerType) {
		return nil
	}
	switch t.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil
	}
	return ctx.ReportBadTypeDefinition(t, "cannot find a key serializer for type %s", types.ShortName(t))
}

func keyString(k reflect.Value) (string, error) {
	if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
		b, err := tm.MarshalText()
		return string(b), err
	}
	switch k.Kind() {
	case reflect.String:
		return k.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	default:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
}

// mapEncoder writes maps as objects, with the keys sorted.
type mapEncoder struct {
	t    *types.Descriptor
	elem bind.Encoder
}

func (e *mapEncoder) Resolve(ctx *bind.Context) error {
	elem, err := ctx.FindEncoder(e.t.ContentType(), bind.SecondarySite(nil))
	if err != nil {
		return err
	}
	e.elem = elem
	return nil
}

func (e *mapEncoder) CreateContextual(ctx *bind.Context, site bind.Site) (bind.Encoder, error) {
	if site.Format() == "" {
		return e, nil
	}
	elem, err := ctx.FindEncoder(e.t.ContentType(), site)
	if err != nil {
		return nil, err
	}
	return &mapEncoder{t: e.t, elem: elem}, nil
}

func (e *mapEncoder) IsEmpty(_ *bind.Context, v reflect.Value) bool {
	return v.Len() == 0
}

func (e *mapEncoder) Encode(ctx *bind.Context, em token.Emitter, v reflect.Value) error {
	if v.IsNil() {
		return em.WriteNull()
	}

	type entry struct {
		name string
		v    reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		name, err := keyString(iter.Key())
		if err != nil {
			return err
		}
		entries = append(entries, entry{name: name, v: iter.Value()})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		return strings.Compare(a.name, b.name)
	})

	if err := em.WriteStartObject(); err != nil {
		return err
	}
	for _, en := range entries {
		if err := em.WriteFieldName(en.name); err != nil {
			return err
		}
		if err := e.elem.Encode(ctx, em, en.v); err != nil {
			return errs.WithPath(wrap(ctx, nil, err), errs.FieldRef(e.t.Raw(), en.name))
		}
	}
	return em.WriteEndObject()
}
