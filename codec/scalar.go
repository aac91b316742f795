package codec

import (
	"encoding/base64"
	"math"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/exp/constraints"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/token"
)

type boolDecoder struct{}

func (boolDecoder) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	switch cur.CurrentToken() {
	case token.True:
		dst.SetBool(true)
	case token.False:
		dst.SetBool(false)
	case token.Null:
		dst.SetZero()
	case token.String:
		s := strings.TrimSpace(cur.Text())
		switch s {
		case "true", "True", "TRUE":
			dst.SetBool(true)
		case "false", "False", "FALSE":
			dst.SetBool(false)
		default:
			v, err := ctx.HandleWeirdStringValue(dst.Type(), s, "only \"true\" or \"false\" recognized")
			if err != nil {
				return err
			}
			return store(ctx, dst, v)
		}
	default:
		return unexpected(ctx, cur, dst)
	}
	return nil
}

// signed decodes signed integers of type T and the types defined on it.
type signed[T constraints.Signed] struct{}

func (signed[T]) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	var n int64
	switch cur.CurrentToken() {
	case token.Number:
		var err error
		n, err = cur.Int()
		if err != nil {
			v, err := ctx.HandleWeirdNumberValue(dst.Type(), cur.Text(), "not an integer")
			if err != nil {
				return err
			}
			return store(ctx, dst, v)
		}
		if int64(T(n)) != n {
			v, err := ctx.HandleWeirdNumberValue(dst.Type(), n, "value out of range")
			if err != nil {
				return err
			}
			return store(ctx, dst, v)
		}
	case token.String:
		s := strings.TrimSpace(cur.Text())
		var err error
		n, err = strconv.ParseInt(s, 10, bitSize[T]())
		if err != nil {
			v, err := ctx.HandleWeirdStringValue(dst.Type(), s, "not a valid integer value")
			if err != nil {
				return err
			}
			return store(ctx, dst, v)
		}
	case token.Null:
		dst.SetZero()
		return nil
	default:
		return unexpected(ctx, cur, dst)
	}

	dst.SetInt(n)
	return nil
}

// unsigned decodes unsigned integers of type T and the types defined on it.
type unsigned[T constraints.Unsigned] struct{}

func (unsigned[T]) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	var n uint64
	switch cur.CurrentToken() {
	case token.Number:
		var err error
		n, err = cur.Uint()
		if err != nil {
			v, err := ctx.HandleWeirdNumberValue(dst.Type(), cur.Text(), "not a non-negative integer")
			if err != nil {
				return err
			}
			return store(ctx, dst, v)
		}
		if uint64(T(n)) != n {
			v, err := ctx.HandleWeirdNumberValue(dst.Type(), n, "value out of range")
			if err != nil {
				return err
			}
			return store(ctx, dst, v)
		}
	case token.String:
		s := strings.TrimSpace(cur.Text())
		var err error
		n, err = strconv.ParseUint(s, 10, bitSize[T]())
		if err != nil {
			v, err := ctx.HandleWeirdStringValue(dst.Type(), s, "not a valid non-negative integer value")
			if err != nil {
				return err
			}
			return store(ctx, dst, v)
		}
	case token.Null:
		dst.SetZero()
		return nil
	default:
		return unexpected(ctx, cur, dst)
	}

	dst.SetUint(n)
	return nil
}

// floating decodes floats of type T and the types defined on it.
type floating[T constraints.Float] struct{}

func (floating[T]) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	var f float64
	switch cur.CurrentToken() {
	case token.Number:
		var err error
		f, err = cur.Float()
		if err != nil {
			v, err := ctx.HandleWeirdNumberValue(dst.Type(), cur.Text(), "not a valid number")
			if err != nil {
				return err
			}
			return store(ctx, dst, v)
		}
	case token.String:
		s := strings.TrimSpace(cur.Text())
		var err error
		f, err = strconv.ParseFloat(s, bitSize[T]())
		if err != nil {
			v, err := ctx.HandleWeirdStringValue(dst.Type(), s, "not a valid representation of a number")
			if err != nil {
				return err
			}
			return store(ctx, dst, v)
		}
	case token.Null:
		dst.SetZero()
		return nil
	default:
		return unexpected(ctx, cur, dst)
	}

	if c := float64(T(f)); math.IsInf(c, 0) && !math.IsInf(f, 0) {
		v, err := ctx.HandleWeirdNumberValue(dst.Type(), f, "value out of range")
		if err != nil {
			return err
		}
		return store(ctx, dst, v)
	}
	dst.SetFloat(f)
	return nil
}

func bitSize[T constraints.Integer | constraints.Float]() int {
	var zero T
	return int(reflect.TypeOf(zero).Size()) * 8
}

type stringDecoder struct{}

func (stringDecoder) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	switch cur.CurrentToken() {
	case token.String, token.Number, token.True, token.False:
		dst.SetString(cur.Text())
	case token.Null:
		dst.SetZero()
	default:
		return unexpected(ctx, cur, dst)
	}
	return nil
}

// scalarEncoder writes booleans, numbers and strings.
type scalarEncoder struct{}

func (scalarEncoder) Encode(ctx *bind.Context, em token.Emitter, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		return em.WriteValue(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return em.WriteValue(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return em.WriteValue(v.Uint())
	case reflect.Float32:
		return em.WriteValue(float32(v.Float()))
	case reflect.Float64:
		return em.WriteValue(v.Float())
	case reflect.String:
		return em.WriteValue(v.String())
	}
	return ctx.ReportBadDefinition(v.Type(), "not a scalar type")
}

func (scalarEncoder) IsEmpty(_ *bind.Context, v reflect.Value) bool {
	return v.Kind() == reflect.String && v.Len() == 0
}

// bytesDecoder reads base64 encoded strings.
type bytesDecoder struct{}

func (bytesDecoder) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	switch cur.CurrentToken() {
	case token.String:
		s := cur.Text()
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			v, err := ctx.HandleWeirdStringValue(dst.Type(), s, "Failed to decode base64 content: "+err.Error())
			if err != nil {
				return err
			}
			return store(ctx, dst, v)
		}
		dst.SetBytes(b)
	case token.Null:
		dst.SetZero()
	default:
		return unexpected(ctx, cur, dst)
	}
	return nil
}

type bytesEncoder struct{}

func (bytesEncoder) Encode(ctx *bind.Context, em token.Emitter, v reflect.Value) error {
	if v.IsNil() {
		return em.WriteNull()
	}
	return em.WriteValue(base64.StdEncoding.EncodeToString(v.Bytes()))
}

func (bytesEncoder) IsEmpty(_ *bind.Context, v reflect.Value) bool {
	return v.Len() == 0
}
