package codec

import (
	"reflect"
	"time"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/token"
)

// TimestampFormat is the format of properties written as Unix milliseconds.
const TimestampFormat = "timestamp"

// timeDecoder reads times from strings, parsed with the layout of the
// property or of the configuration, or from Unix milliseconds.
type timeDecoder struct {
	layout string
}

func (d *timeDecoder) CreateContextual(ctx *bind.Context, site bind.Site) (bind.Decoder, error) {
	f := site.Format()
	if f == "" || f == d.layout || f == TimestampFormat {
		return d, nil
	}
	return &timeDecoder{layout: f}, nil
}

func (d *timeDecoder) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	switch cur.CurrentToken() {
	case token.String:
		s := cur.Text()
		if s == "" {
			dst.SetZero()
			return nil
		}
		t, err := ctx.ParseDate(s, d.layout)
		if err != nil {
			v, err := ctx.HandleWeirdStringValue(dst.Type(), s, err.Error())
			if err != nil {
				return err
			}
			return store(ctx, dst, v)
		}
		dst.Set(reflect.ValueOf(t))
	case token.Number:
		ms, err := cur.Int()
		if err != nil {
			v, err := ctx.HandleWeirdNumberValue(dst.Type(), cur.Text(), "not a timestamp in milliseconds")
			if err != nil {
				return err
			}
			return store(ctx, dst, v)
		}
		dst.Set(reflect.ValueOf(time.UnixMilli(ms).In(ctx.Config().Location())))
	case token.Null:
		dst.SetZero()
	default:
		return unexpected(ctx, cur, dst)
	}
	return nil
}

// timeEncoder writes times with the layout of the property, of the
// configuration, or as RFC 3339 strings.
type timeEncoder struct {
	layout string
}

func (e *timeEncoder) CreateContextual(ctx *bind.Context, site bind.Site) (bind.Encoder, error) {
	f := site.Format()
	if f == "" || f == e.layout {
		return e, nil
	}
	return &timeEncoder{layout: f}, nil
}

func (e *timeEncoder) Encode(ctx *bind.Context, em token.Emitter, v reflect.Value) error {
	t := v.Interface().(time.Time)

	layout := e.layout
	if layout == TimestampFormat || (layout == "" && ctx.Enabled(bind.WriteDatesAsTimestamps)) {
		return em.WriteValue(t.UnixMilli())
	}
	if layout == "" {
		layout = ctx.Config().DateLayout()
	}
	if layout == "" {
		layout = time.RFC3339Nano
	}
	return em.WriteValue(t.In(ctx.Config().Location()).Format(layout))
}

func (e *timeEncoder) IsEmpty(_ *bind.Context, v reflect.Value) bool {
	return v.Interface().(time.Time).IsZero()
}
