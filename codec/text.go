package codec

import (
	"encoding"
	"reflect"
	"strconv"
	"strings"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

// textDecoder reads values of types implementing encoding.TextUnmarshaler.
type textDecoder struct {
	t reflect.Type
}

func (d textDecoder) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	switch cur.CurrentToken() {
	case token.Null:
		dst.SetZero()
		return nil
	case token.String, token.Number, token.True, token.False:
	default:
		return unexpected(ctx, cur, dst)
	}

	s := cur.Text()
	p := reflect.New(d.t)
	if err := p.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
		v, err := ctx.HandleWeirdStringValue(d.t, s, err.Error())
		if err != nil {
			return err
		}
		return store(ctx, dst, v)
	}
	dst.Set(p.Elem())
	return nil
}

// textEncoder writes values of types implementing encoding.TextMarshaler.
type textEncoder struct{}

func (textEncoder) Encode(ctx *bind.Context, em token.Emitter, v reflect.Value) error {
	b, err := v.Interface().(encoding.TextMarshaler).MarshalText()
	if err != nil {
		return err
	}
	return em.WriteValue(string(b))
}

// enumCodec reads and writes values of types implementing types.Enum by
// name. Integer enums are indexes into the names, string enums must hold
// one of the names.
type enumCodec struct {
	t     reflect.Type
	names []string
	index map[string]int
}

func newEnumCodec(t reflect.Type) *enumCodec {
	names := reflect.New(t).Interface().(types.Enum).EnumNames()
	c := enumCodec{
		t:     t,
		names: names,
		index: make(map[string]int, len(names)),
	}
	for i, n := range names {
		c.index[n] = i
	}
	return &c
}

func (c *enumCodec) isString() bool { return c.t.Kind() == reflect.String }

func (c *enumCodec) set(dst reflect.Value, i int) {
	if c.isString() {
		dst.SetString(c.names[i])
		return
	}
	switch dst.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst.SetUint(uint64(i))
	default:
		dst.SetInt(int64(i))
	}
}

func (c *enumCodec) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	switch cur.CurrentToken() {
	case token.String:
		s := cur.Text()
		i, ok := c.index[s]
		if !ok {
			v, err := ctx.HandleWeirdStringValue(c.t, s, "not one of the values accepted for Enum class: ["+strings.Join(c.names, ", ")+"]")
			if err != nil {
				return err
			}
			return store(ctx, dst, v)
		}
		c.set(dst, i)
	case token.Number:
		n, err := cur.Int()
		if err != nil || n < 0 || n >= int64(len(c.names)) {
			v, err := ctx.HandleWeirdNumberValue(c.t, cur.Text(), "index value outside legal index range [0.."+strconv.Itoa(len(c.names)-1)+"]")
			if err != nil {
				return err
			}
			return store(ctx, dst, v)
		}
		c.set(dst, int(n))
	case token.Null:
		dst.SetZero()
	default:
		return unexpected(ctx, cur, dst)
	}
	return nil
}

func (c *enumCodec) Encode(ctx *bind.Context, em token.Emitter, v reflect.Value) error {
	if c.isString() {
		return em.WriteValue(v.String())
	}

	var i int64
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i = int64(v.Uint())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i = v.Int()
	default:
		return ctx.ReportBadDefinition(c.t, "enum types must be defined on integers or strings")
	}
	if i < 0 || i >= int64(len(c.names)) {
		return ctx.ReportBadDefinition(c.t, "enum value "+strconv.Itoa(int(i))+" has no name")
	}
	return em.WriteValue(c.names[i])
}

func enumKind(k reflect.Kind) bool {
	switch k {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
